package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/strata/errors"
	testdb "github.com/teranos/strata/internal/testing"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	fileKV, err := NewFileKV(t.TempDir())
	require.NoError(t, err)
	return map[string]KV{
		"memory": NewMemoryKV(),
		"sqlite": NewSQLiteKV(testdb.CreateTestDB(t)),
		"file":   fileKV,
		"dynamo": NewDynamoKV(newFakeDynamo(), "strata-test"),
	}
}

func TestKV_Contract(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := kv.Get(ctx, "canvas_Missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, kv.Set(ctx, "canvas_Main_Canvas", `{"v":1}`))
			require.NoError(t, kv.Set(ctx, "canvas_Main_Canvas", `{"v":2}`))
			require.NoError(t, kv.Set(ctx, "canvas_Payments", `{}`))
			require.NoError(t, kv.Set(ctx, "other/key", `{}`))

			v, ok, err := kv.Get(ctx, "canvas_Main_Canvas")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, `{"v":2}`, v, "set overwrites")

			keys, err := kv.Keys(ctx, KeyPrefix)
			require.NoError(t, err)
			assert.Equal(t, []string{"canvas_Main_Canvas", "canvas_Payments"}, keys)

			require.NoError(t, kv.Remove(ctx, "canvas_Payments"))
			require.NoError(t, kv.Remove(ctx, "canvas_Payments"), "removing twice is fine")

			keys, err = kv.Keys(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"canvas_Main_Canvas", "other/key"}, keys)
		})
	}
}

func TestSQLiteKV_PrefixIsLiteral(t *testing.T) {
	ctx := context.Background()
	kv := NewSQLiteKV(testdb.CreateTestDB(t))

	require.NoError(t, kv.Set(ctx, "canvas_A", "{}"))
	require.NoError(t, kv.Set(ctx, "canvasXB", "{}"))

	keys, err := kv.Keys(ctx, "canvas_")
	require.NoError(t, err)
	assert.Equal(t, []string{"canvas_A"}, keys)
}

func TestSQLiteKV_DriverErrors(t *testing.T) {
	ctx := context.Background()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	kv := NewSQLiteKV(conn)

	t.Run("set", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO canvas_store").
			WithArgs("canvas_A", "{}", 2).
			WillReturnError(errors.New("disk I/O error"))

		err := kv.Set(ctx, "canvas_A", "{}")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk I/O error")
	})

	t.Run("get", func(t *testing.T) {
		mock.ExpectQuery("SELECT value FROM canvas_store").
			WithArgs("canvas_A").
			WillReturnError(errors.New("database is locked"))

		_, ok, err := kv.Get(ctx, "canvas_A")
		assert.False(t, ok)
		assert.Error(t, err)
	})

	t.Run("keys scan error", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"key"}).AddRow("canvas_A").RowError(0, errors.New("corrupt page"))
		mock.ExpectQuery("SELECT key FROM canvas_store").WillReturnRows(rows)

		_, err := kv.Keys(ctx, KeyPrefix)
		assert.Error(t, err)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFileKV_EscapesKeys(t *testing.T) {
	ctx := context.Background()
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, kv.Set(ctx, "../escape attempt", "x"))
	v, ok, err := kv.Get(ctx, "../escape attempt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", v)

	keys, err := kv.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"../escape attempt"}, keys)
}

// fakeDynamo is an in-memory DynamoAPI keyed by the "PK" attribute.
type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func pk(item map[string]types.AttributeValue) string {
	if s, ok := item["PK"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[pk(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.items[pk(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	delete(f.items, pk(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	prefix := ""
	if v, ok := in.ExpressionAttributeValues[":prefix"].(*types.AttributeValueMemberS); ok {
		prefix = v.Value
	}
	out := &dynamodb.ScanOutput{}
	for k := range f.items {
		if strings.HasPrefix(k, prefix) {
			out.Items = append(out.Items, map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: k},
			})
		}
	}
	return out, nil
}

func TestDynamoKV_Errors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	fake.err = errors.New("ProvisionedThroughputExceededException")
	kv := NewDynamoKV(fake, "strata-test")

	assert.Error(t, kv.Set(ctx, "canvas_A", "{}"))
	_, _, err := kv.Get(ctx, "canvas_A")
	assert.Error(t, err)
	_, err = kv.Keys(ctx, KeyPrefix)
	assert.Error(t, err)
}

func TestOpenDynamoKV_RequiresTable(t *testing.T) {
	_, err := OpenDynamoKV(context.Background(), DynamoOptions{})
	require.Error(t, err)
	assert.NotEmpty(t, errors.GetAllHints(err))
}
