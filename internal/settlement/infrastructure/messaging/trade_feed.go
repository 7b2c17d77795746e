// Package messaging 成交流水的 Kafka 发布
package messaging

import (
	"context"

	exchange "github.com/wyfcoding/exchangesim/internal/exchange/domain"
	"github.com/wyfcoding/exchangesim/internal/settlement/domain"
	"github.com/wyfcoding/exchangesim/pkg/mq"
)

// TradeFeed 将结算完成的成交推送到 Kafka 主题，key 为合约代码
type TradeFeed struct {
	producer *mq.KafkaProducer
	topic    string
}

// NewTradeFeed 创建成交流水发布器
func NewTradeFeed(producer *mq.KafkaProducer, topic string) *TradeFeed {
	return &TradeFeed{producer: producer, topic: topic}
}

type tradeMessage struct {
	Trade *exchange.Trade   `json:"trade"`
	Fees  []domain.FeeEntry `json:"fees"`
}

// PublishTrade 发布单笔成交及其双边费用
func (f *TradeFeed) PublishTrade(ctx context.Context, trade *exchange.Trade, fees []domain.FeeEntry) error {
	return f.producer.SendMessage(ctx, f.topic, trade.Symbol, tradeMessage{
		Trade: trade,
		Fees:  fees,
	})
}

// Close 关闭底层生产者
func (f *TradeFeed) Close() error {
	return f.producer.Close()
}
