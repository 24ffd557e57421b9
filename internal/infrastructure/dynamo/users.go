package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-api-accounts/internal/domain"
)

// UserRepo stores identity records in the users table. Every address is
// reserved by a guard item (user_id = "email#<addr>") written in the same
// transaction as the record, which makes email uniqueness strict even
// though the email-index GSI is eventually consistent.
type UserRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewUserRepo(client API, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName, now: time.Now}
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	now := r.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	guard := guardKey(u.Email)
	guard[fieldOwnerID] = &types.AttributeValueMemberS{Value: u.UserID}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(user_id)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                guard,
				ConditionExpression: aws.String("attribute_not_exists(user_id)"),
			}},
		},
	})
	if err != nil {
		if cancelledOn(err, 1) {
			return fmt.Errorf("create user: %w", domain.ErrDuplicateEmail)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(emailIndex),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldEmail},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: email}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return r.getByGuard(ctx, email)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// getByGuard resolves email through its guard item with a consistent read.
// Covers the window in which a fresh record is not yet visible in the GSI.
func (r *UserRepo) getByGuard(ctx context.Context, email string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            guardKey(email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	owner, ok := out.Item[fieldOwnerID].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return r.Get(ctx, owner.Value)
}

// Update writes email, name and password hash. is_active is never part of
// the update; it only changes through MarkActive.
func (r *UserRepo) Update(ctx context.Context, u *domain.User) error {
	cur, err := r.Get(ctx, u.UserID)
	if err != nil {
		return err
	}
	u.UpdatedAt = r.now().UTC()
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldEmail:        u.Email,
		fieldName:         u.Name,
		fieldPasswordHash: u.PasswordHash,
		fieldUpdatedAt:    u.UpdatedAt,
	})
	if err != nil {
		return err
	}
	update := &types.Update{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldUserID, u.UserID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
		ConditionExpression:       aws.String("attribute_exists(user_id)"),
	}

	if cur.Email == u.Email {
		_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:                 update.TableName,
			Key:                       update.Key,
			UpdateExpression:          update.UpdateExpression,
			ExpressionAttributeNames:  update.ExpressionAttributeNames,
			ExpressionAttributeValues: update.ExpressionAttributeValues,
			ConditionExpression:       update.ConditionExpression,
		})
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return err
	}

	// Address change: move the guard item along with the record.
	guard := guardKey(u.Email)
	guard[fieldOwnerID] = &types.AttributeValueMemberS{Value: u.UserID}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: update},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                guard,
				ConditionExpression: aws.String("attribute_not_exists(user_id)"),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       guardKey(cur.Email),
			}},
		},
	})
	switch {
	case err == nil:
		return nil
	case cancelledOn(err, 1):
		return fmt.Errorf("update user: %w", domain.ErrDuplicateEmail)
	case cancelledOn(err, 0):
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	default:
		return fmt.Errorf("update user: %w", err)
	}
}

// MarkActive flips is_active with a conditional write so concurrent
// activations have exactly one winner. The write also requires email and
// password hash to still match u.
func (r *UserRepo) MarkActive(ctx context.Context, u *domain.User) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldUserID, u.UserID),
		UpdateExpression:    aws.String("SET #act = :t, #upd = :now"),
		ConditionExpression: aws.String(markActiveCond),
		ExpressionAttributeNames: map[string]string{
			"#act": fieldIsActive,
			"#upd": fieldUpdatedAt,
			"#em":  fieldEmail,
			"#ph":  fieldPasswordHash,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":   &types.AttributeValueMemberBOOL{Value: true},
			":f":   &types.AttributeValueMemberBOOL{Value: false},
			":now": &types.AttributeValueMemberS{Value: r.now().UTC().Format(time.RFC3339Nano)},
			":em":  &types.AttributeValueMemberS{Value: u.Email},
			":ph":  &types.AttributeValueMemberS{Value: u.PasswordHash},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) == 0 {
			return fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		if act, ok := ccf.Item[fieldIsActive].(*types.AttributeValueMemberBOOL); ok && act.Value {
			return domain.ErrAlreadyActive
		}
		return fmt.Errorf("user %s: %w", u.UserID, domain.ErrStaleRecord)
	}
	return fmt.Errorf("activate user: %w", err)
}

const markActiveCond = "attribute_exists(user_id) AND #act = :f AND #em = :em AND #ph = :ph"
