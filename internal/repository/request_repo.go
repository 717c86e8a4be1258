package repository

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

type RequestRepo interface {
	// CountPending 返回待处理的入队申请/邀请数量
	CountPending(ctx context.Context, viewerID string) (int, error)
}

type requestRepoImpl struct {
	client *resty.Client
}

func NewRequestRepo(client *resty.Client) RequestRepo {
	return &requestRepoImpl{client: client}
}

func (s *requestRepoImpl) CountPending(ctx context.Context, viewerID string) (int, error) {
	var body struct {
		Count int `json:"count"`
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("viewer_id", viewerID).
		SetResult(&body).
		Get("/teams/requests/pending/count")
	if err != nil {
		return 0, errors.Wrap(err, "count pending requests")
	}
	if resp.IsError() {
		return 0, errors.Errorf("count pending requests: status %d", resp.StatusCode())
	}
	return body.Count, nil
}
