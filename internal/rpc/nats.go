package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
)

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Prefix  string        `mapstructure:"prefix" yaml:"prefix"`
	Token   string        `mapstructure:"token" yaml:"token"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DefaultNATSConfig returns the local server defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:     nats.DefaultURL,
		Prefix:  "readaloud",
		Timeout: 2 * time.Second,
	}
}

// Subject is the subject commands arrive on.
func (c NATSConfig) Subject() string {
	return c.Prefix + ".command"
}

// NATSService answers requests published to <prefix>.command.
type NATSService struct {
	cfg  NATSConfig
	conn *nats.Conn
	sub  *nats.Subscription
	d    *Dispatcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConnectNATS dials the server in cfg.
func ConnectNATS(cfg NATSConfig) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, errors.New("no NATS server configured")
	}
	options := []nats.Option{
		nats.Name("readaloud"),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	conn, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Info("connected to NATS", "url", cfg.URL)
	return conn, nil
}

// NewNATSService serves d over conn until Close or until parent ends.
func NewNATSService(parent context.Context, cfg NATSConfig, conn *nats.Conn, d *Dispatcher) *NATSService {
	ctx, cancel := context.WithCancel(parent)
	return &NATSService{cfg: cfg, conn: conn, d: d, ctx: ctx, cancel: cancel}
}

// Start subscribes.
func (s *NATSService) Start() error {
	sub, err := s.conn.Subscribe(s.cfg.Subject(), s.handleMsg)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.Subject(), err)
	}
	s.sub = sub
	log.Info("serving commands over NATS", "subject", s.cfg.Subject())
	return nil
}

// Close drains the subscription and waits for in-flight commands.
func (s *NATSService) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *NATSService) handleMsg(msg *nats.Msg) {
	s.wg.Add(1)
	defer s.wg.Done()

	out := s.d.HandleJSON(s.ctx, msg.Data)
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(out); err != nil {
		log.Warn("rpc: nats reply failed", "err", err)
	}
}
