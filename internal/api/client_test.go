package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

func setupServer(t *testing.T, register func(r *gin.Engine)) *Client {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL).WithToken("tok")
}

func TestListMessages(t *testing.T) {
	client := setupServer(t, func(r *gin.Engine) {
		r.GET("/chats/:chat_id/messages", func(c *gin.Context) {
			assert.Equal(t, "Bearer tok", c.GetHeader("Authorization"))
			assert.NotEmpty(t, c.GetHeader("X-Request-Id"))
			c.JSON(http.StatusOK, gin.H{"messages": []gin.H{
				{"id": 1, "content": "a", "user": gin.H{"id": 2}, "sent_at": "2024-01-01T00:00:00Z"},
				{"id": 2, "content": "b", "user": gin.H{"id": 3}, "sent_at": "2024-01-01T00:01:00Z"},
			}})
		})
	})

	msgs, err := client.ListMessages(context.Background(), models.ChatRef(5))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", msgs[0].ID)
	assert.Equal(t, "b", msgs[1].Text)
	assert.Equal(t, 3, msgs[1].SenderID)
}

func TestListMessagesMalformed(t *testing.T) {
	client := setupServer(t, func(r *gin.Engine) {
		r.GET("/groups/:group_id/messages", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"messages": []gin.H{{"content": "no id"}}})
		})
	})

	_, err := client.ListMessages(context.Background(), models.GroupRef(5))
	require.ErrorIs(t, err, models.ErrMalformedPayload)
}

func TestListMessagesNotFound(t *testing.T) {
	client := setupServer(t, func(r *gin.Engine) {
		r.GET("/chats/:chat_id/messages", func(c *gin.Context) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		})
	})

	_, err := client.ListMessages(context.Background(), models.ChatRef(5))
	require.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "chat not found", apiErr.Message)
}

func TestSendMessageMultipart(t *testing.T) {
	client := setupServer(t, func(r *gin.Engine) {
		r.POST("/chats/:chat_id/messages", func(c *gin.Context) {
			assert.Equal(t, "5", c.PostForm("chat_id"))
			assert.Equal(t, "hi", c.PostForm("content"))
			file, err := c.FormFile("image_content")
			require.NoError(t, err)
			f, err := file.Open()
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			f.Close()
			assert.Equal(t, "png-bytes", string(data))

			c.JSON(http.StatusCreated, gin.H{"success": true, "data": gin.H{
				"id": 11, "content": "hi", "sender": 1, "image": "/media/11.png", "timestamp": "2024-01-01T00:00:00Z",
			}})
		})
	})

	sent, err := client.SendMessage(context.Background(), models.ChatRef(5), models.OutgoingMessage{
		Text:  "hi",
		Image: &models.Attachment{Filename: "a.png", ContentType: "image/png", Data: []byte("png-bytes")},
	})
	require.NoError(t, err)
	assert.Equal(t, "11", sent.ID)
	assert.Equal(t, "/media/11.png", sent.ImageURL)
	assert.Equal(t, 1, sent.SenderID)
}

func TestRequestIDFromContext(t *testing.T) {
	var got string
	client := setupServer(t, func(r *gin.Engine) {
		r.DELETE("/chats/:chat_id/messages/:message_id", func(c *gin.Context) {
			got = c.GetHeader("X-Request-Id")
			c.JSON(http.StatusOK, gin.H{"success": true})
		})
	})

	ctx := observability.WithRequestID(context.Background(), "req-42")
	require.NoError(t, client.DeleteMessage(ctx, models.ChatRef(5), "3"))
	assert.Equal(t, "req-42", got)
}

func TestSendMessageRejected(t *testing.T) {
	client := setupServer(t, func(r *gin.Engine) {
		r.POST("/chats/:chat_id/messages", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": false, "error": "muted"})
		})
	})

	_, err := client.SendMessage(context.Background(), models.ChatRef(5), models.OutgoingMessage{Text: "hi"})
	require.ErrorIs(t, err, ErrRejected)
}

func TestDeleteAndEditMessage(t *testing.T) {
	client := setupServer(t, func(r *gin.Engine) {
		r.DELETE("/chats/:chat_id/messages/:message_id", func(c *gin.Context) {
			if c.Param("message_id") == "9" {
				c.JSON(http.StatusOK, gin.H{"success": true})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": false, "error": "not yours"})
		})
		r.PATCH("/chats/:chat_id/messages/:message_id", func(c *gin.Context) {
			var body struct {
				Content string `json:"content"`
			}
			require.NoError(t, c.ShouldBindJSON(&body))
			assert.Equal(t, "edited", body.Content)
			c.Status(http.StatusNoContent)
		})
	})

	ctx := context.Background()
	require.NoError(t, client.DeleteMessage(ctx, models.ChatRef(1), "9"))
	require.ErrorIs(t, client.DeleteMessage(ctx, models.ChatRef(1), "10"), ErrRejected)
	require.NoError(t, client.EditMessage(ctx, models.ChatRef(1), "9", "edited"))
}

func TestSearchUsers(t *testing.T) {
	client := setupServer(t, func(r *gin.Engine) {
		r.GET("/users/search", func(c *gin.Context) {
			assert.Equal(t, "Jan Doe", c.Query("q"))
			c.JSON(http.StatusOK, gin.H{"search_results": []gin.H{{"id": 4, "full_name": "Jan Doe", "profile_image": "/p.png"}}})
		})
	})

	users, err := client.SearchUsers(context.Background(), "Jan Doe")
	require.NoError(t, err)
	assert.Equal(t, []models.UserSummary{{ID: 4, FullName: "Jan Doe", ProfileImage: "/p.png"}}, users)
}

func TestListConversations(t *testing.T) {
	client := setupServer(t, func(r *gin.Engine) {
		r.GET("/chats", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"chats": []gin.H{{"chat_id": 3, "friend_id": 2, "friend_username": "bob"}}})
		})
		r.GET("/groups", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"groups": []gin.H{{"id": 8, "name": "crew", "owner_id": 1}}})
		})
	})

	list, err := client.ListConversations(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.ChatRef(3), list[0].Ref)
	assert.Equal(t, "bob", list[0].DisplayName)
	assert.Equal(t, []int{1, 2}, list[0].ParticipantIDs)
	assert.Equal(t, models.GroupRef(8), list[1].Ref)
}

func TestListConversationsPartialFailure(t *testing.T) {
	client := setupServer(t, func(r *gin.Engine) {
		r.GET("/chats", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"chats": []gin.H{}})
		})
		r.GET("/groups", func(c *gin.Context) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		})
	})

	_, err := client.ListConversations(context.Background(), 1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
}

func TestNotifications(t *testing.T) {
	client := setupServer(t, func(r *gin.Engine) {
		r.GET("/notifications", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"notifications": []gin.H{{"id": 1, "message": "x liked"}}, "unread_count": 1})
		})
		r.POST("/notifications/:id/read", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true})
		})
		r.POST("/notifications/read-all", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true})
		})
	})

	ctx := context.Background()
	list, unread, err := client.ListNotifications(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, unread)
	require.NoError(t, client.MarkNotificationRead(ctx, 1))
	require.NoError(t, client.MarkAllNotificationsRead(ctx))
}

func TestStartChat(t *testing.T) {
	client := setupServer(t, func(r *gin.Engine) {
		r.POST("/chats/start", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"chat_id": 12})
		})
	})

	ref, err := client.StartChat(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.ChatRef(12), ref)
}

func TestTransportFailure(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	_, err := client.SearchUsers(context.Background(), "x")
	require.Error(t, err)
}
