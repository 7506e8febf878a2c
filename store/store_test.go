package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/adonese/crud/apperr"
	"github.com/adonese/crud/resource"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type widget struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Name  string `json:"name" gorm:"uniqueIndex"`
	Color string `json:"color"`
	Size  int    `json:"size"`
}

type token struct {
	Code  string `json:"code" gorm:"primaryKey"`
	Label string `json:"label"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	db, err := Open(Config{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	}, WithLogger(logger))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	if err := Migrate(context.Background(), db, &widget{}, &token{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

func newWidgets(t *testing.T, db *gorm.DB) *Table[widget] {
	t.Helper()
	table, err := NewTable[widget](db)
	require.NoError(t, err)
	return table
}

func TestConfigDialector(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		driver  string
		wantErr bool
	}{
		{"default sqlite", Config{}, DriverSQLite, false},
		{"default with url", Config{URL: "postgres://localhost/crud"}, DriverPostgres, false},
		{"explicit sqlite3", Config{Driver: "sqlite3"}, DriverSQLite, false},
		{"postgres needs url", Config{Driver: "postgres"}, "", true},
		{"mysql", Config{Driver: "mysql", URL: "root@tcp(localhost)/crud"}, DriverMySQL, false},
		{"mysql needs url", Config{Driver: "MySQL"}, "", true},
		{"unknown", Config{Driver: "oracle"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, driver, err := tt.cfg.dialector()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
		})
	}
}

func TestTableLifecycle(t *testing.T) {
	ctx := context.Background()
	table := newWidgets(t, newTestDB(t))

	a := &widget{Name: "bolt", Color: "red", Size: 3}
	require.NoError(t, table.Insert(ctx, a))
	require.NotZero(t, a.ID)
	b := &widget{Name: "nut", Color: "blue", Size: 3}
	require.NoError(t, table.Insert(ctx, b))

	got, err := table.Get(ctx, "1", nil)
	require.NoError(t, err)
	assert.Equal(t, *a, *got)

	all, err := table.All(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []widget{*a, *b}, all)

	got.Color = "green"
	require.NoError(t, table.Save(ctx, got))
	got, err = table.Get(ctx, "1", nil)
	require.NoError(t, err)
	assert.Equal(t, "green", got.Color)

	n, err := table.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, table.Delete(ctx, "1", nil))
	require.NoError(t, table.Delete(ctx, "1", nil))
	_, err = table.Get(ctx, "1", nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	require.NoError(t, table.DeleteAll(ctx, nil))
	all, err = table.All(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.NotNil(t, all)
}

func TestTableNotFound(t *testing.T) {
	ctx := context.Background()
	table := newWidgets(t, newTestDB(t))

	_, err := table.Get(ctx, "43", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.Equal(t, `widget "43" not found`, apperr.Message(err))

	_, err = table.Get(ctx, "not-a-number", nil)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	assert.NoError(t, table.Delete(ctx, "not-a-number", nil))
}

func TestTableConflict(t *testing.T) {
	ctx := context.Background()
	table := newWidgets(t, newTestDB(t))

	require.NoError(t, table.Insert(ctx, &widget{ID: 1, Name: "bolt"}))
	err := table.Insert(ctx, &widget{ID: 1, Name: "washer"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperr.Status(err))

	err = table.Insert(ctx, &widget{Name: "bolt"})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestTableScope(t *testing.T) {
	ctx := context.Background()
	table := newWidgets(t, newTestDB(t))
	for _, w := range []widget{
		{Name: "bolt", Color: "red", Size: 3},
		{Name: "nut", Color: "red", Size: 5},
		{Name: "washer", Color: "blue", Size: 5},
	} {
		w := w
		require.NoError(t, table.Insert(ctx, &w))
	}

	red, err := table.All(ctx, resource.Scope{"color": "red"})
	require.NoError(t, err)
	assert.Len(t, red, 2)

	// query strings arrive untyped and are converted to the column's kind
	five, err := table.All(ctx, resource.Scope{"size": "5"})
	require.NoError(t, err)
	assert.Len(t, five, 2)

	_, err = table.All(ctx, resource.Scope{"size": "five"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = table.Get(ctx, "3", resource.Scope{"color": "red"})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	require.NoError(t, table.Delete(ctx, "3", resource.Scope{"color": "red"}))
	n, err := table.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, table.DeleteAll(ctx, resource.Scope{"color": "red"}))
	left, err := table.All(ctx, nil)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "washer", left[0].Name)

	_, err = table.All(ctx, resource.Scope{"weight": "1"})
	assert.Equal(t, http.StatusInternalServerError, apperr.Status(err))
}

func TestTableStringKey(t *testing.T) {
	ctx := context.Background()
	table, err := NewTable[token](newTestDB(t))
	require.NoError(t, err)

	require.NoError(t, table.Insert(ctx, &token{Code: "b", Label: "second"}))
	require.NoError(t, table.Insert(ctx, &token{Code: "a", Label: "first"}))

	got, err := table.Get(ctx, "a", nil)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Label)

	all, err := table.All(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []token{{"a", "first"}, {"b", "second"}}, all)
}

func TestSessionsPreferRequestTx(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	sessions := Sessions[widget](db)

	tx := db.Begin()
	require.NoError(t, tx.Error)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request = req.WithContext(WithTx(req.Context(), tx))

	s, err := sessions(c)
	require.NoError(t, err)
	require.NoError(t, s.Insert(c.Request.Context(), &widget{Name: "bolt"}))
	require.NoError(t, tx.Rollback().Error)

	var n int64
	require.NoError(t, db.Model(&widget{}).Count(&n).Error)
	assert.Zero(t, n)

	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	s, err = sessions(c)
	require.NoError(t, err)
	require.NoError(t, s.Insert(c.Request.Context(), &widget{Name: "bolt"}))
	require.NoError(t, db.Model(&widget{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestTxFromContext(t *testing.T) {
	_, ok := TxFromContext(context.Background())
	assert.False(t, ok)
	_, ok = TxFromContext(WithTx(context.Background(), nil))
	assert.False(t, ok)
}

func TestMigrateNilDB(t *testing.T) {
	assert.Error(t, Migrate(context.Background(), nil, &widget{}))
	assert.NoError(t, Ping(context.Background(), newTestDB(t)))
}
