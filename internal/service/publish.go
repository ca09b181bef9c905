package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/d60-Lab/did-node/internal/model"
)

// Broadcaster 把字节投递到 gossip 主题
type Broadcaster interface {
	Publish(ctx context.Context, data []byte) error
}

// Publisher 将规范提交编码后广播
type Publisher struct{ topic Broadcaster }

func NewPublisher(topic Broadcaster) *Publisher { return &Publisher{topic: topic} }

// Publish 发布一条已接受的提交
func (p *Publisher) Publish(ctx context.Context, s *model.Submission) error {
	data, err := EncodeSubmission(s)
	if err != nil {
		return err
	}
	if err := p.topic.Publish(ctx, data); err != nil {
		return fmt.Errorf("publish submission: %w", err)
	}
	return nil
}

// EncodeSubmission gossip 载荷编码
func EncodeSubmission(s *model.Submission) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}
	return data, nil
}

// DecodeSubmission 解析 gossip 载荷
func DecodeSubmission(data []byte) (model.Submission, error) {
	var s model.Submission
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("decode submission: %w", err)
	}
	return s, nil
}
