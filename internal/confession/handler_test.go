package confession_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tyrowin/talkrooms/internal/confession"
	"github.com/Tyrowin/talkrooms/internal/mocks"
)

func newRouter(store confession.Store, submit ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	h := confession.NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.Register(r, submit...)
	return r
}

func do(t *testing.T, r http.Handler, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/confessions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreate_StoresAndReturns201(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)

	// Given
	store.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, c confession.Confession) (confession.Confession, error) {
			req.Equal("Late again", c.Title)
			req.Equal("work", c.ConfessionType)
			req.Equal("sam", c.Username)
			req.NotEqual(uuid.Nil, c.ID)
			return c, nil
		})

	// When
	rec := do(t, newRouter(store), http.MethodPost,
		`{"title":"Late again","content":"I overslept","confession_type":"work","username":"  sam  "}`)

	// Then
	req.Equal(http.StatusCreated, rec.Code)
	var body struct {
		Message string                `json:"message"`
		Data    confession.Confession `json:"data"`
	}
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	req.Equal("Confession submitted successfully", body.Message)
	req.Equal("sam", body.Data.Username)
}

func TestCreate_BlankUsernameIsAnonymous(t *testing.T) {
	req := require.New(t)
	store := confession.NewMemoryStore()
	r := newRouter(store)

	rec := do(t, r, http.MethodPost, `{"title":"t","content":"c","confession_type":"love","username":"   "}`)
	req.Equal(http.StatusCreated, rec.Code)

	list, err := store.List(t.Context())
	req.NoError(err)
	req.Len(list, 1)
	req.Equal(confession.AnonymousUsername, list[0].Username)
}

func TestCreate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"title":`},
		{"missing title", `{"content":"c","confession_type":"x"}`},
		{"missing content", `{"title":"t","confession_type":"x"}`},
		{"missing type", `{"title":"t","content":"c"}`},
		{"title too long", `{"title":"` + strings.Repeat("a", 201) + `","content":"c","confession_type":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := mocks.NewMockStore(ctrl)
			store.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)

			rec := do(t, newRouter(store), http.MethodPost, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestCreate_StoreFailureIs500(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(confession.Confession{}, errors.New("disk full"))

	rec := do(t, newRouter(store), http.MethodPost, `{"title":"t","content":"c","confession_type":"x"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"disk full"}`, rec.Body.String())
}

func TestList_NewestFirst(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.EXPECT().List(gomock.Any()).Return([]confession.Confession{
		{ID: uuid.New(), Title: "second", CreatedAt: now.Add(time.Minute)},
		{ID: uuid.New(), Title: "first", CreatedAt: now},
	}, nil)

	rec := do(t, newRouter(store), http.MethodGet, "")

	req.Equal(http.StatusOK, rec.Code)
	var list []confession.Confession
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &list))
	req.Equal("second", list[0].Title)
	req.Equal("first", list[1].Title)
}

func TestList_EmptyIsArray(t *testing.T) {
	rec := do(t, newRouter(confession.NewMemoryStore()), http.MethodGet, "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestList_StoreFailureIs500(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockStore(ctrl)
	store.EXPECT().List(gomock.Any()).Return(nil, errors.New("connection refused"))

	rec := do(t, newRouter(store), http.MethodGet, "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRegister_SubmitMiddlewareWrapsPostOnly(t *testing.T) {
	req := require.New(t)
	calls := 0
	counting := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			next.ServeHTTP(w, r)
		})
	}
	r := newRouter(confession.NewMemoryStore(), counting)

	do(t, r, http.MethodGet, "")
	req.Zero(calls)
	do(t, r, http.MethodPost, `{"title":"t","content":"c","confession_type":"x"}`)
	req.Equal(1, calls)
}
