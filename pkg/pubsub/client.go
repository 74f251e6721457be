package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/quizlink-backend/pkg/config"
	"github.com/angelmondragon/quizlink-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub topic is required")
	errClosed            = errors.New("pubsub client not initialized")
)

// Client owns one Pub/Sub connection and a publisher per topic. Publishers
// batch in the background, so they are reused and stopped on Close.
type Client struct {
	conn    *pubsub.Client
	project string
	topics  []string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects to Pub/Sub and fails unless every topic the service
// publishes to already exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	conn, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		conn:       conn,
		project:    project,
		topics:     []string{cfg.SyncTopic},
		publishers: map[string]*pubsub.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"gcp_project": project,
			"topics":      c.topics,
		}), "pubsub client ready")
	}
	return c, nil
}

// Ping checks that each configured topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return errClosed
	}
	for _, topic := range c.topics {
		if err := c.lookupTopic(ctx, topic); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) lookupTopic(ctx context.Context, topic string) error {
	name := TopicName(c.project, topic)
	if name == "" {
		return errNoTopic
	}
	_, err := c.conn.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("topic %s does not exist", name)
	default:
		return fmt.Errorf("get topic %s: %w", name, err)
	}
}

// Publisher returns the shared publisher for topic, an ID or a full resource
// name. It returns nil when the client is unusable or topic is blank.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.conn == nil {
		return nil
	}
	name := TopicName(c.project, topic)
	if name == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[name]; ok {
		return p
	}
	p := c.conn.Publisher(name)
	c.publishers[name] = p
	return p
}

// Close flushes every publisher and then closes the connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.conn.Close()
}

// TopicName expands a topic ID into projects/<project>/topics/<id>. Names that
// are already fully qualified pass through.
func TopicName(project, topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	if strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/") {
		return topic
	}
	project = strings.TrimSpace(project)
	if project == "" {
		return ""
	}
	return "projects/" + project + "/topics/" + topic
}
