package db

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"scormrelay/internal/mapping"
)

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

func TestBlobRepository_Read_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBlobRepository(db)

	db.On("QueryRow", mock.Anything, `SELECT content FROM mapping_blobs WHERE key = $1`, []any{"course_mappings.json"}).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*[]byte) = []byte(`{"CRS-1":"https://hooks.example/a"}`)
			return nil
		}})

	data, err := repo.Read(context.Background(), "course_mappings.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"CRS-1":"https://hooks.example/a"}`, string(data))
	db.AssertExpectations(t)
}

func TestBlobRepository_Read_NoRows(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBlobRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.Read(context.Background(), "course_mappings.json")
	assert.ErrorIs(t, err, mapping.ErrBlobNotFound)
}

func TestBlobRepository_Read_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBlobRepository(db)

	boom := errors.New("connection refused")
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: boom})

	_, err := repo.Read(context.Background(), "course_mappings.json")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, mapping.ErrBlobNotFound)
}

func TestBlobRepository_Write_Upserts(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBlobRepository(db)

	payload := []byte(`{}`)
	db.On("Exec", mock.Anything, mock.MatchedBy(func(sql string) bool {
		return strings.Contains(sql, "ON CONFLICT (key) DO UPDATE")
	}), []any{"course_mappings.json", payload, "application/json"}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	require.NoError(t, repo.Write(context.Background(), "course_mappings.json", payload, "application/json"))
	db.AssertExpectations(t)
}

func TestBlobRepository_Write_Error(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBlobRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("read-only transaction"))

	err := repo.Write(context.Background(), "k", []byte("{}"), "application/json")
	assert.ErrorContains(t, err, "read-only transaction")
}

func TestBlobRepository_EnsureSchemaAndPing(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBlobRepository(db)

	db.On("Exec", mock.Anything, blobSchema, mock.Anything).
		Return(pgconn.NewCommandTag("CREATE TABLE"), nil)
	db.On("QueryRow", mock.Anything, `SELECT 1`, mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*int) = 1
			return nil
		}})

	require.NoError(t, repo.EnsureSchema(context.Background()))
	require.NoError(t, repo.Ping(context.Background()))
	db.AssertExpectations(t)
}

func TestBlobRepository_BacksMappingCache(t *testing.T) {
	db := new(mockDBTX)
	repo := NewBlobRepository(db)
	cache := mapping.NewCache(mapping.CacheConfig{Store: repo, Key: "course_mappings.json"})

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("too many connections")})

	_, err := cache.Load(context.Background(), true)
	var accessErr *mapping.StoreAccessError
	require.ErrorAs(t, err, &accessErr)
}
