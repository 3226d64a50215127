package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/isdelr/burn-detector-be/internal/auth"
	"github.com/isdelr/burn-detector-be/internal/config"
	"github.com/isdelr/burn-detector-be/internal/database"
	"github.com/isdelr/burn-detector-be/internal/models"
	"github.com/isdelr/burn-detector-be/internal/predictor"
	"github.com/isdelr/burn-detector-be/internal/services"
	"github.com/isdelr/burn-detector-be/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*httptest.Server
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T, predictorHandler http.HandlerFunc, configure func(*config.Config)) *testServer {
	t.Helper()

	if predictorHandler == nil {
		predictorHandler = func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"grado":"Segundo grado","confianza":0.9,"recomendaciones":"Enfriar con agua"}`)
		}
	}
	classifier := httptest.NewServer(predictorHandler)
	t.Cleanup(classifier.Close)

	cfg := &config.Config{
		StaticDir:        t.TempDir(),
		PublicBaseURL:    "http://localhost:5000",
		AllowedOrigins:   []string{"*"},
		PredictorURL:     classifier.URL,
		PredictorTimeout: 5 * time.Second,
		JWTSecret:        "test-secret",
		TokenTTL:         time.Hour,
	}
	if configure != nil {
		configure(cfg)
	}

	db, err := database.New(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { db.Close() })

	hub := websocket.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)

	uploads, err := services.NewUploadService(cfg.StaticDir)
	require.NoError(t, err)
	events := services.NewEventService(db)
	users := services.NewUserService(db, events)
	history := services.NewHistoryService(db, hub, events)
	diagnosis := services.NewDiagnosisService(uploads, history, predictor.New(cfg.PredictorURL, cfg.PredictorTimeout), cfg.PublicBaseURL)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)

	srv := httptest.NewServer(NewRouter(cfg, db, hub, tokens, users, history, uploads, diagnosis, events))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (s *testServer) postImage(t *testing.T, path, filename string, data []byte, fields map[string]string) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		part.Write(data)
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(s.URL+path, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

type historyRow struct {
	ID              int64   `json:"id"`
	ImageURL        string  `json:"imageUrl"`
	Grade           string  `json:"grado"`
	Confidence      float64 `json:"confianza"`
	Recommendations string  `json:"recomendaciones"`
	Date            string  `json:"fecha"`
}

func TestRegisterLoginSaveListDelete(t *testing.T) {
	s := newTestServer(t, nil, nil)

	status, body := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "a@x.com", "password": "pw123"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "Usuario creado correctamente", decode[map[string]any](t, body)["message"])

	status, body = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "a@x.com", "password": "other"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Correo ya registrado"}`, string(body))

	status, body = s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "b@x.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Faltan campos requeridos"}`, string(body))

	status, body = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@x.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.JSONEq(t, `{"error":"Contraseña incorrecta"}`, string(body))

	status, body = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "nobody@x.com", "password": "pw123"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"Usuario no encontrado"}`, string(body))

	status, body = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@x.com", "password": "pw123"})
	require.Equal(t, http.StatusOK, status, string(body))
	login := decode[struct {
		Message string `json:"message"`
		UserID  int64  `json:"userId"`
		Token   string `json:"token"`
	}](t, body)
	assert.Equal(t, "Login correcto", login.Message)
	assert.Positive(t, login.UserID)
	assert.NotEmpty(t, login.Token)

	// The id is a string when it comes back from local storage.
	status, body = s.do(t, http.MethodPost, "/api/chat/save", "", map[string]any{
		"userId": fmt.Sprint(login.UserID), "grado": "Primer Grado", "confianza": 87, "recomendaciones": "Reposo",
	})
	require.Equal(t, http.StatusOK, status, string(body))
	saved := decode[struct {
		Message string `json:"message"`
		ID      int64  `json:"id"`
	}](t, body)
	assert.Equal(t, "Guardado exitosamente", saved.Message)

	status, body = s.do(t, http.MethodPost, "/api/chat/save", "", map[string]any{
		"userId": login.UserID, "grado": "", "confianza": 87, "recomendaciones": "Reposo",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"Faltan campos requeridos"}`, string(body))

	status, body = s.do(t, http.MethodGet, fmt.Sprintf("/api/chat/history/%d", login.UserID), "", nil)
	require.Equal(t, http.StatusOK, status)
	rows := decode[[]historyRow](t, body)
	require.Len(t, rows, 1)
	assert.Equal(t, saved.ID, rows[0].ID)
	assert.Equal(t, "Primer Grado", rows[0].Grade)
	assert.Equal(t, 87.0, rows[0].Confidence)
	assert.Equal(t, "Reposo", rows[0].Recommendations)
	_, err := time.Parse(models.DateLayout, rows[0].Date)
	assert.NoError(t, err, rows[0].Date)

	status, body = s.do(t, http.MethodDelete, fmt.Sprintf("/api/chat/%d", saved.ID), "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"message":"Registro eliminado"}`, string(body))

	status, body = s.do(t, http.MethodDelete, fmt.Sprintf("/api/chat/%d", saved.ID), "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t, `{"error":"Registro no encontrado"}`, string(body))

	status, body = s.do(t, http.MethodGet, fmt.Sprintf("/api/chat/history/%d", login.UserID), "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestHistoryEdgeCases(t *testing.T) {
	s := newTestServer(t, nil, nil)

	status, body := s.do(t, http.MethodGet, "/api/chat/history/abc", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))

	status, _ = s.do(t, http.MethodDelete, "/api/chat/abc", "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Zero is a valid confidence, a missing one is not.
	status, _ = s.do(t, http.MethodPost, "/api/chat/save", "", map[string]any{
		"userId": 3, "grado": "Tercer grado", "confianza": 0, "recomendaciones": "Urgencias",
	})
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, http.MethodPost, "/api/chat/save", "", map[string]any{
		"userId": 3, "grado": "Tercer grado", "recomendaciones": "Urgencias",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	for _, empty := range []any{nil, ""} {
		status, body := s.do(t, http.MethodPost, "/api/chat/save", "", map[string]any{
			"userId": 3, "grado": "Tercer grado", "confianza": empty, "recomendaciones": "Urgencias",
		})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.JSONEq(t, `{"error":"Faltan campos requeridos"}`, string(body))
	}

	req, err := http.NewRequest(http.MethodPost, s.URL+"/api/chat/save", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadAndStaticServing(t *testing.T) {
	s := newTestServer(t, nil, nil)

	status, body := s.postImage(t, "/api/upload", "", nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"No se subió ninguna imagen"}`, string(body))

	status, body = s.postImage(t, "/api/upload", "quemadura.png", []byte("png-bytes"), nil)
	require.Equal(t, http.StatusOK, status, string(body))
	imageURL := decode[map[string]string](t, body)["imageUrl"]
	assert.Regexp(t, `^/static/imagen_\d+\.png$`, imageURL)

	resp, err := http.Get(s.URL + imageURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png-bytes", string(data))
}

func TestUploadTooLarge(t *testing.T) {
	s := newTestServer(t, nil, func(cfg *config.Config) { cfg.MaxUploadBytes = 1024 })

	status, _ := s.postImage(t, "/api/upload", "big.jpg", bytes.Repeat([]byte("x"), 4096), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
}

func TestDiagnoseOverHTTP(t *testing.T) {
	s := newTestServer(t, nil, nil)

	status, body := s.postImage(t, "/api/chat/diagnose", "burn.jpg", []byte("pixels"), map[string]string{"userId": "4"})
	require.Equal(t, http.StatusOK, status, string(body))

	result := decode[struct {
		Grade    string `json:"grado"`
		ImageURL string `json:"imageUrl"`
		Saved    bool   `json:"saved"`
		Messages []struct {
			Sender string `json:"sender"`
			Text   string `json:"text"`
		} `json:"messages"`
	}](t, body)
	assert.Equal(t, "Segundo grado", result.Grade)
	assert.True(t, result.Saved)
	assert.True(t, strings.HasPrefix(result.ImageURL, "http://localhost:5000/static/imagen_"))
	require.Len(t, result.Messages, 3)
	assert.Equal(t, "Diagnóstico: Segundo grado (90%)", result.Messages[2].Text)

	status, body = s.do(t, http.MethodGet, "/api/chat/history/4", "", nil)
	require.Equal(t, http.StatusOK, status)
	rows := decode[[]historyRow](t, body)
	require.Len(t, rows, 1)
	assert.Equal(t, result.ImageURL, rows[0].ImageURL)
}

func TestDiagnosePredictorError(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":"modelo no cargado"}`)
	}, nil)

	status, body := s.postImage(t, "/api/chat/diagnose", "burn.jpg", []byte("pixels"), nil)
	assert.Equal(t, http.StatusBadGateway, status)
	failure := decode[map[string]any](t, body)
	assert.Equal(t, "modelo no cargado", failure["error"])
}

func TestDiagnoseOverWebsocket(t *testing.T) {
	s := newTestServer(t, nil, nil)

	status, body := s.postImage(t, "/api/upload", "burn.jpg", []byte("pixels"), nil)
	require.Equal(t, http.StatusOK, status)
	imageURL := decode[map[string]string](t, body)["imageUrl"]

	wsURL := "ws" + strings.TrimPrefix(s.URL, "http") + "/api/chat/ws?userId=7"
	conn, _, err := gorilla.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":  "diagnose",
		"payload": map[string]any{"imageUrl": imageURL, "userId": 7},
	}))

	var lines []string
	var gotResult, gotPush bool
	for !gotResult || !gotPush {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg websocket.Message
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Action {
		case websocket.ActionBotMessage:
			lines = append(lines, decode[map[string]string](t, msg.Payload)["text"])
		case websocket.ActionDiagnosisResult:
			gotResult = true
			assert.Equal(t, true, decode[map[string]any](t, msg.Payload)["saved"])
		case websocket.ActionHistoryUpdated:
			gotPush = true
			assert.Equal(t, "saved", decode[map[string]any](t, msg.Payload)["change"])
		default:
			t.Fatalf("unexpected action %q", msg.Action)
		}
	}
	assert.Equal(t, []string{
		services.MsgGreeting,
		services.MsgAnalyzing,
		"Diagnóstico: Segundo grado (90%)",
	}, lines)
}

func TestRequireAuth(t *testing.T) {
	s := newTestServer(t, nil, func(cfg *config.Config) { cfg.RequireAuth = true })

	status, _ := s.do(t, http.MethodGet, "/api/chat/history/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = s.do(t, http.MethodGet, "/api/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "a@x.com", "password": "pw123"})
	_, body := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "a@x.com", "password": "pw123"})
	login := decode[struct {
		UserID int64  `json:"userId"`
		Token  string `json:"token"`
	}](t, body)

	status, _ = s.do(t, http.MethodGet, fmt.Sprintf("/api/chat/history/%d", login.UserID+1), login.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodPost, "/api/chat/save", login.Token, map[string]any{
		"userId": login.UserID + 1, "grado": "Primer grado", "confianza": 50, "recomendaciones": "r",
	})
	assert.Equal(t, http.StatusForbidden, status)

	status, body = s.do(t, http.MethodPost, "/api/chat/save", login.Token, map[string]any{
		"userId": login.UserID, "grado": "Primer grado", "confianza": 50, "recomendaciones": "r",
	})
	require.Equal(t, http.StatusOK, status, string(body))

	status, body = s.do(t, http.MethodGet, fmt.Sprintf("/api/chat/history/%d", login.UserID), login.Token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]historyRow](t, body), 1)

	status, body = s.do(t, http.MethodGet, "/api/events", login.Token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(body), "a@x.com")

	status, body = s.do(t, http.MethodGet, "/api/auth/me", login.Token, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "a@x.com", decode[map[string]any](t, body)["email"])
}

func TestHealthAndEvents(t *testing.T) {
	s := newTestServer(t, nil, nil)

	status, body := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	health := decode[map[string]any](t, body)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "ok", health["database"])

	s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "a@x.com", "password": "pw123"})
	status, body = s.do(t, http.MethodGet, "/api/events?limit=5", "", nil)
	assert.Equal(t, http.StatusOK, status)
	events := decode[[]map[string]any](t, body)
	require.NotEmpty(t, events)
	assert.Equal(t, "user.register", events[0]["type"])
}
