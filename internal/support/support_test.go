// Copyright 2026 The Digital Portal Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package support

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	messages map[string]*Message
}

func newMemRepo() *memRepo {
	return &memRepo{messages: make(map[string]*Message)}
}

func (m *memRepo) Create(_ context.Context, msg *Message) error {
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *memRepo) List(_ context.Context, status string) ([]*Message, error) {
	var out []*Message
	for _, msg := range m.messages {
		if status == "" || msg.Status == status {
			cp := *msg
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id, status string, closedAt *time.Time) error {
	msg, ok := m.messages[id]
	if !ok {
		return ErrMessageNotFound
	}
	msg.Status = status
	msg.ClosedAt = closedAt
	return nil
}

// TestPurpose: Public submission validation
// Expected: Bad email or short subject is rejected; the body is optional
func TestService_Submit(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil)
	ctx := context.Background()

	msg, err := svc.Submit(ctx, "student@example.com", "Login problem", "")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, msg.Status)
	assert.NotEmpty(t, msg.ID)

	_, err = svc.Submit(ctx, "not-an-email", "Login problem", "")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = svc.Submit(ctx, "student@example.com", "Hey", "")
	assert.ErrorIs(t, err, ErrSubjectTooShort)
}

// TestPurpose: Admin inbox filtering and closing
// Expected: Closing stamps the time; the open filter drops closed messages
func TestService_CloseAndList(t *testing.T) {
	closedTime := time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC)
	svc := NewService(newMemRepo(), nil, func() time.Time { return closedTime })
	ctx := context.Background()

	a, err := svc.Submit(ctx, "a@example.com", "Cannot reset password", "help")
	require.NoError(t, err)
	_, err = svc.Submit(ctx, "b@example.com", "Wrong faculty on profile", "")
	require.NoError(t, err)

	require.NoError(t, svc.Close(ctx, a.ID))

	open, err := svc.List(ctx, StatusOpen)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, msg := range all {
		if msg.ID == a.ID {
			require.NotNil(t, msg.ClosedAt)
			assert.Equal(t, closedTime, *msg.ClosedAt)
		}
	}

	assert.ErrorIs(t, svc.Close(ctx, "missing"), ErrMessageNotFound)
}
