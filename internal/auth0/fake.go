package auth0

import (
	"context"
	"sync"
)

// FakeClient serves profiles keyed by access token.
type FakeClient struct {
	mu    sync.Mutex
	users map[string]*UserInfo
	Calls int
}

func NewFakeClient() *FakeClient {
	return &FakeClient{users: make(map[string]*UserInfo)}
}

func (c *FakeClient) GetUserInfo(_ context.Context, accessToken string) (*UserInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if user, ok := c.users[accessToken]; ok {
		return user, nil
	}
	return nil, ErrUserInfoFailed
}

func (c *FakeClient) AddUser(accessToken string, info *UserInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[accessToken] = info
}
