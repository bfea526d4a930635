package httpdto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	naive, err := ParseTime("2024-05-01T10:20:30.123456")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 20, 30, 123456000, time.UTC), naive)

	zoned, err := ParseTime("2024-05-01T10:20:30+02:00")
	require.NoError(t, err)
	assert.True(t, zoned.Equal(time.Date(2024, 5, 1, 8, 20, 30, 0, time.UTC)))

	empty, err := ParseTime("")
	require.NoError(t, err)
	assert.True(t, empty.IsZero())

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}

func TestMessagesResponseToDomain(t *testing.T) {
	body := `{"messages":[{"id":1,"chat_id":3,"content":"hi","reply_content":null,
		"sent_time":"2024-05-01T10:20:30","image_url":null,
		"sender":{"id":9,"username":"bob","display_name":"Bob"}}]}`

	var resp MessagesResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))

	msgs := resp.ToDomain()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(1), msgs[0].ID)
	assert.Equal(t, int64(3), msgs[0].ChatID)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "Bob", msgs[0].Sender.Name())
	assert.False(t, msgs[0].HasImage())
	assert.Equal(t, 2024, msgs[0].SentTime.Year())
}

func TestChatDTORoundTrip(t *testing.T) {
	var resp ChatsResponse
	require.NoError(t, json.Unmarshal([]byte(`{"chats":[{"chat_id":4,"participants":[
		{"id":1,"username":"alice","display_name":"Alice"},{"id":2,"username":"bob"}]}]}`), &resp))

	require.Len(t, resp.Chats, 1)
	chat := resp.Chats[0].ToDomain()
	assert.Equal(t, int64(4), chat.ID)
	assert.Equal(t, resp.Chats[0], NewChatDTO(chat))
}

func TestTimestampMarshalZero(t *testing.T) {
	data, err := json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}
