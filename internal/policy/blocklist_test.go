package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockList_Blocks(t *testing.T) {
	b := NewBlockList([]string{"facebook.com", " Reddit.com ", "", "   "})

	assert.Equal(t, 2, b.Len())

	tests := []struct {
		host string
		want bool
	}{
		{"facebook.com", true},
		{"www.facebook.com", true},
		{"notfacebook.com", true},
		{"old.reddit.com", true},
		{"REDDIT.COM", true},
		{"facebook.org", false},
		{"github.com", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Blocks(tt.host))
		})
	}
}

func TestBlockList_Empty(t *testing.T) {
	var zero BlockList
	assert.False(t, zero.Blocks("example.com"))
	assert.False(t, NewBlockList(nil).BlocksURL("https://example.com"))
}

func TestBlockList_BlocksURL(t *testing.T) {
	b := NewBlockList([]string{"youtube.com"})

	assert.True(t, b.BlocksURL("https://www.youtube.com/watch?v=1"))
	assert.True(t, b.BlocksURL("http://youtube.com:8080/"))
	// Only the hostname is tested, never the path or query.
	assert.False(t, b.BlocksURL("https://example.com/?next=youtube.com"))
	assert.False(t, b.BlocksURL("::not a url"))
}

func TestHostname(t *testing.T) {
	tests := []struct {
		raw  string
		host string
		ok   bool
	}{
		{"https://Example.COM/path", "example.com", true},
		{"http://127.0.0.1:8080/", "127.0.0.1", true},
		{"about:blank", "", false},
		{"", "", false},
		{"%zz", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			host, ok := Hostname(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.host, host)
		})
	}
}

func TestIsInsecure(t *testing.T) {
	assert.True(t, IsInsecure("http://example.com"))
	assert.True(t, IsInsecure(" HTTP://example.com"))
	assert.False(t, IsInsecure("https://example.com"))
	assert.False(t, IsInsecure("chrome://settings"))
	assert.False(t, IsInsecure("%zz"))
}
