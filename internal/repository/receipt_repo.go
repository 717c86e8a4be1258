package repository

import (
	"Teamlink/internal/model"
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

type ReceiptRepo interface {
	// Upsert 上报 (会话, 用户) 的已读水位，服务端负责 max 合并
	Upsert(ctx context.Context, threadID, viewerID string, seenAt int64) error
	// Fetch 返回会话内 参与者 -> 已读水位 的服务端快照
	Fetch(ctx context.Context, threadID string) (map[string]int64, error)
}

type receiptRepoImpl struct {
	client *resty.Client
}

func NewReceiptRepo(client *resty.Client) ReceiptRepo {
	return &receiptRepoImpl{client: client}
}

func (s *receiptRepoImpl) Upsert(ctx context.Context, threadID, viewerID string, seenAt int64) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(&model.Watermark{
			ThreadID: threadID,
			ViewerID: viewerID,
			SeenAt:   seenAt,
		}).
		Post("/im/receipts")
	if err != nil {
		return errors.Wrap(err, "upsert receipt")
	}
	if resp.IsError() {
		return errors.Errorf("upsert receipt: status %d", resp.StatusCode())
	}
	return nil
}

func (s *receiptRepoImpl) Fetch(ctx context.Context, threadID string) (map[string]int64, error) {
	seen := make(map[string]int64)

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("thread_id", threadID).
		SetResult(&seen).
		Get("/im/receipts")
	if err != nil {
		return nil, errors.Wrap(err, "fetch receipts")
	}
	if resp.IsError() {
		return nil, errors.Errorf("fetch receipts: status %d", resp.StatusCode())
	}
	return seen, nil
}
