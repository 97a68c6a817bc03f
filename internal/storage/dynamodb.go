package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// clientPresenceItem mirrors llm-gateway's Tenant struct shape
// (internal/store/dynamodb.go) but for client presence instead of
// tenant rate limits.
type clientPresenceItem struct {
	ClientID string `dynamodbav:"client_id"`
	UserID   string `dynamodbav:"user_id"`
	Status   string `dynamodbav:"status"`
	LastSeen string `dynamodbav:"last_seen"`
}

// DynamoDBPresenceStore is the alternate PresenceStore implementation
// for operators already running the rest of their fleet on DynamoDB —
// generalized directly from llm-gateway's DynamoDBTenantStore
// (same client construction, same PutItem/GetItem shape, different
// table and fields).
type DynamoDBPresenceStore struct {
	client    *dynamodb.Client
	tableName string
}

func NewDynamoDBPresenceStore(ctx context.Context, region, tableName string) (*DynamoDBPresenceStore, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	return &DynamoDBPresenceStore{
		client:    dynamodb.NewFromConfig(cfg),
		tableName: tableName,
	}, nil
}

func (s *DynamoDBPresenceStore) put(ctx context.Context, item clientPresenceItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("storage: marshal presence item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("storage: put presence item: %w", err)
	}
	return nil
}

func (s *DynamoDBPresenceStore) UpsertOnline(ctx context.Context, clientID, userID string) error {
	return s.put(ctx, clientPresenceItem{
		ClientID: clientID,
		UserID:   userID,
		Status:   "online",
		LastSeen: time.Now().Format(time.RFC3339),
	})
}

func (s *DynamoDBPresenceStore) MarkOffline(ctx context.Context, clientID string) error {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"client_id": &types.AttributeValueMemberS{Value: clientID},
		},
	})
	if err != nil {
		return fmt.Errorf("storage: get presence item %s: %w", clientID, err)
	}
	userID := ""
	if out.Item != nil {
		var existing clientPresenceItem
		if err := attributevalue.UnmarshalMap(out.Item, &existing); err == nil {
			userID = existing.UserID
		}
	}
	return s.put(ctx, clientPresenceItem{
		ClientID: clientID,
		UserID:   userID,
		Status:   "offline",
		LastSeen: time.Now().Format(time.RFC3339),
	})
}
