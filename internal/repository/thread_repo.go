package repository

import (
	"Teamlink/internal/model"
	"context"
	"strconv"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

type ThreadRepo interface {
	ListThreads(ctx context.Context, viewerID string) ([]*model.Thread, error)
	ListMessages(ctx context.Context, threadID string, limit int) ([]*model.Message, error)
}

type threadRepoImpl struct {
	client *resty.Client
}

func NewThreadRepo(client *resty.Client) ThreadRepo {
	return &threadRepoImpl{client: client}
}

// ListThreads 拉取用户参与的全部会话
func (s *threadRepoImpl) ListThreads(ctx context.Context, viewerID string) ([]*model.Thread, error) {
	var threads []*model.Thread

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("viewer_id", viewerID).
		SetResult(&threads).
		Get("/im/threads")
	if err != nil {
		return nil, errors.Wrap(err, "list threads")
	}
	if resp.IsError() {
		return nil, errors.Errorf("list threads: status %d", resp.StatusCode())
	}
	return threads, nil
}

// ListMessages 拉取会话消息，按创建时间升序
func (s *threadRepoImpl) ListMessages(ctx context.Context, threadID string, limit int) ([]*model.Message, error) {
	var messages []*model.Message

	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("thread_id", threadID).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&messages).
		Get("/im/threads/{thread_id}/messages")
	if err != nil {
		return nil, errors.Wrapf(err, "list messages of %s", threadID)
	}
	if resp.IsError() {
		return nil, errors.Errorf("list messages of %s: status %d", threadID, resp.StatusCode())
	}
	return messages, nil
}
