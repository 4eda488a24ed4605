package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"txstatus/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	transactionPath = "/feeder_gateway/get_transaction"
	blockPath       = "/feeder_gateway/get_block"

	blockNotFoundCode = "StarknetErrorCode.BLOCK_NOT_FOUND"
)

var ErrUnexpectedResponse = errors.New("unexpected gateway response")

type Config struct {
	URL          string
	Timeout      time.Duration
	MaxRetries   uint64
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

// Client talks to the sequencer's feeder gateway.
type Client struct {
	http *resty.Client
	cfg  Config
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("gateway url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: httpClient, cfg: cfg}, nil
}

type transactionReply struct {
	Status      domain.GatewayStatus `json:"status"`
	BlockHash   *domain.BlockHash    `json:"block_hash"`
	BlockNumber *uint64              `json:"block_number"`
}

type blockReply struct {
	BlockHash    *domain.BlockHash    `json:"block_hash"`
	ParentHash   domain.BlockHash     `json:"parent_block_hash"`
	BlockNumber  *uint64              `json:"block_number"`
	Status       domain.GatewayStatus `json:"status"`
	Timestamp    uint64               `json:"timestamp"`
	Transactions []struct {
		Hash domain.TransactionHash `json:"transaction_hash"`
	} `json:"transactions"`
}

type errorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) Transaction(ctx context.Context, hash domain.TransactionHash) (domain.GatewayTransaction, error) {
	var reply transactionReply
	if err := c.get(ctx, "gateway.Transaction", transactionPath, map[string]string{"transactionHash": hash.String()}, &reply); err != nil {
		return domain.GatewayTransaction{}, err
	}
	if reply.Status == "" {
		return domain.GatewayTransaction{}, fmt.Errorf("%w: transaction status is missing", ErrUnexpectedResponse)
	}
	return domain.GatewayTransaction{
		Hash:        hash,
		Status:      reply.Status,
		BlockHash:   reply.BlockHash,
		BlockNumber: reply.BlockNumber,
	}, nil
}

func (c *Client) PendingBlock(ctx context.Context) (domain.PendingBlock, error) {
	var reply blockReply
	if err := c.get(ctx, "gateway.PendingBlock", blockPath, map[string]string{"blockNumber": "pending"}, &reply); err != nil {
		return domain.PendingBlock{}, err
	}
	return domain.PendingBlock{
		ParentHash:   reply.ParentHash,
		Timestamp:    reply.Timestamp,
		Transactions: reply.transactionHashes(),
	}, nil
}

// Block returns the block with the given number, or false when the gateway
// does not know it yet.
func (c *Client) Block(ctx context.Context, number uint64) (domain.Block, bool, error) {
	var reply blockReply
	err := c.get(ctx, "gateway.Block", blockPath, map[string]string{"blockNumber": strconv.FormatUint(number, 10)}, &reply)
	if err != nil {
		if errors.Is(err, errBlockNotFound) {
			return domain.Block{}, false, nil
		}
		return domain.Block{}, false, err
	}
	block, err := reply.toBlock()
	if err != nil {
		return domain.Block{}, false, err
	}
	return block, true, nil
}

func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var reply blockReply
	if err := c.get(ctx, "gateway.LatestBlock", blockPath, map[string]string{"blockNumber": "latest"}, &reply); err != nil {
		return 0, err
	}
	if reply.BlockNumber == nil {
		return 0, fmt.Errorf("%w: latest block number is missing", ErrUnexpectedResponse)
	}
	return *reply.BlockNumber, nil
}

func (r blockReply) transactionHashes() []domain.TransactionHash {
	hashes := make([]domain.TransactionHash, 0, len(r.Transactions))
	for _, tx := range r.Transactions {
		hashes = append(hashes, tx.Hash)
	}
	return hashes
}

func (r blockReply) toBlock() (domain.Block, error) {
	if r.BlockHash == nil || r.BlockNumber == nil {
		return domain.Block{}, fmt.Errorf("%w: block hash or number is missing", ErrUnexpectedResponse)
	}
	return domain.Block{
		Number:       *r.BlockNumber,
		Hash:         *r.BlockHash,
		ParentHash:   r.ParentHash,
		Timestamp:    r.Timestamp,
		Status:       r.Status,
		Transactions: r.transactionHashes(),
	}, nil
}

var errBlockNotFound = errors.New("block not found")

// get performs one logical request, retrying transport failures, throttling
// and 5xx replies with capped exponential backoff.
func (c *Client) get(ctx context.Context, spanName, path string, query map[string]string, result any) error {
	ctx, span := otel.Tracer("txstatus/gateway").Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.route", path)),
	)
	defer span.End()

	backoff := retry.NewExponential(c.cfg.RetryBackoff)
	backoff = retry.WithCappedDuration(c.cfg.MaxBackoff, backoff)
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithMaxRetries(c.cfg.MaxRetries, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		var failure errorReply
		res, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(query).
			SetResult(result).
			SetError(&failure).
			Get(path)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("GET %s: %w", path, err))
		}
		switch {
		case res.IsSuccess():
			return nil
		case res.StatusCode() == http.StatusTooManyRequests || res.StatusCode() >= 500:
			if failure.Code == blockNotFoundCode {
				return errBlockNotFound
			}
			return retry.RetryableError(fmt.Errorf("GET %s: status %d: %s", path, res.StatusCode(), failure.Message))
		case failure.Code == blockNotFoundCode:
			return errBlockNotFound
		default:
			return fmt.Errorf("%w: GET %s: status %d: %s %s", ErrUnexpectedResponse, path, res.StatusCode(), failure.Code, failure.Message)
		}
	})
	span.SetAttributes(attribute.Int("http.attempts", attempt))
	if err != nil && !errors.Is(err, errBlockNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
