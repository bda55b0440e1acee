package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/formsentry/formsentry/internal/account"
	"github.com/formsentry/formsentry/internal/config"
	"github.com/formsentry/formsentry/internal/models"
	"github.com/formsentry/formsentry/internal/moderation"
	"github.com/formsentry/formsentry/internal/ratelimit"
	"github.com/formsentry/formsentry/internal/reputation"
	"github.com/formsentry/formsentry/internal/security"
	"github.com/formsentry/formsentry/internal/spam"
	"github.com/formsentry/formsentry/internal/submission"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type intakeFixture struct {
	db        *gorm.DB
	engine    *gin.Engine
	moderator *moderation.Orchestrator
}

// setupIntake wires the full request path against in-memory storage and the
// given fake oracle. The moderation pool is started; tests drain it with
// drainModeration before asserting on moderation outcomes.
func setupIntake(t *testing.T, oracleURL string) *intakeFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:intake_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.User{}, &models.AccountSettings{}, &models.Submission{}); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}

	store := submission.NewStore(db)
	checker := reputation.NewChecker(reputation.NewClient(config.AbuseIPDBConfig{
		APIKey:       "test-key",
		BaseURL:      oracleURL,
		MaxAgeInDays: 90,
		Timeout:      2 * time.Second,
	}), store)
	classifier := spam.NewClassifier(spam.NewClient(config.OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: oracleURL,
		Model:   "gpt-3.5-turbo",
		Timeout: 2 * time.Second,
	}), store)

	moderator := moderation.NewOrchestrator(checker, classifier, config.ModerationConfig{QueueSize: 16, Workers: 1})
	moderator.Start(context.Background())

	engine := gin.New()
	engine.POST("/forms", NewFormsHandler(account.NewService(db), store, ratelimit.NewMemoryLimiter(), moderator).Submit)
	return &intakeFixture{db: db, engine: engine, moderator: moderator}
}

func (f *intakeFixture) drainModeration() {
	f.moderator.Stop()
}

func (f *intakeFixture) post(body, contentType, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/forms"+query, strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Forwarded-For", "203.0.113.50")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)
	return rec
}

func seedIntakeAccount(t *testing.T, db *gorm.DB, calls, limit int64) *models.AccountSettings {
	t.Helper()
	user := models.User{Email: fmt.Sprintf("seed%d@example.com", time.Now().UnixNano()), PasswordHash: "x"}
	if errCreate := db.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	settings := models.AccountSettings{
		UserID:             user.ID,
		APIKey:             security.GenerateAPIKey(),
		Tier:               models.TierFree,
		APICallsThisPeriod: calls,
		MaxAPICalls:        limit,
		PeriodMonth:        time.Now().UTC().Format("2006-01"),
	}
	if errCreate := db.Create(&settings).Error; errCreate != nil {
		t.Fatalf("create settings: %v", errCreate)
	}
	return &settings
}

func nopOracle(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":{"abuseConfidenceScore":0}}`)
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func TestSubmitRejectsMalformedKey(t *testing.T) {
	t.Parallel()

	fixture := setupIntake(t, nopOracle(t))
	rec := fixture.post(`{"name":"a"}`, "application/json", "?api_key=bad-format")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitRejectsMissingKey(t *testing.T) {
	t.Parallel()

	fixture := setupIntake(t, nopOracle(t))
	rec := fixture.post(`{"name":"a"}`, "application/json", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitProvisionsUnknownWellFormedKey(t *testing.T) {
	t.Parallel()

	fixture := setupIntake(t, nopOracle(t))
	rec := fixture.post(`{"name":"a"}`, "application/json", "?api_key="+security.GenerateAPIKey())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}

	var accounts int64
	fixture.db.Model(&models.AccountSettings{}).Count(&accounts)
	if accounts != 1 {
		t.Fatalf("accounts = %d, want 1", accounts)
	}
	var settings models.AccountSettings
	if errFind := fixture.db.First(&settings).Error; errFind != nil {
		t.Fatalf("load account: %v", errFind)
	}
	if settings.Tier != models.TierFree {
		t.Fatalf("tier = %q, want free", settings.Tier)
	}

	var row models.Submission
	if errFind := fixture.db.First(&row).Error; errFind != nil {
		t.Fatalf("load submission: %v", errFind)
	}
	if row.Blocked != nil {
		t.Fatalf("blocked must be unset right after intake")
	}
	if row.IPAddress != "203.0.113.50" {
		t.Fatalf("ip = %q, want the forwarded address", row.IPAddress)
	}
}

func TestSubmitRejectsExhaustedAccount(t *testing.T) {
	t.Parallel()

	fixture := setupIntake(t, nopOracle(t))
	settings := seedIntakeAccount(t, fixture.db, 5, 5)

	rec := fixture.post(`{"name":"a"}`, "application/json", "?api_key="+settings.APIKey)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}

	var count int64
	fixture.db.Model(&models.Submission{}).Count(&count)
	if count != 0 {
		t.Fatalf("no submission must be stored on 429, got %d", count)
	}
}

func TestSubmitRejectsNestedPayload(t *testing.T) {
	t.Parallel()

	fixture := setupIntake(t, nopOracle(t))
	settings := seedIntakeAccount(t, fixture.db, 0, 100)

	rec := fixture.post(`{"a":{"b":1}}`, "application/json", "?api_key="+settings.APIKey)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var count int64
	fixture.db.Model(&models.Submission{}).Count(&count)
	if count != 0 {
		t.Fatalf("nested payload must not be stored, got %d", count)
	}
}

func TestSubmitRejectsArrayValue(t *testing.T) {
	t.Parallel()

	fixture := setupIntake(t, nopOracle(t))
	settings := seedIntakeAccount(t, fixture.db, 0, 100)

	rec := fixture.post(`{"a":[1,2]}`, "application/json", "?api_key="+settings.APIKey)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitRejectsUnsupportedContentType(t *testing.T) {
	t.Parallel()

	fixture := setupIntake(t, nopOracle(t))
	settings := seedIntakeAccount(t, fixture.db, 0, 100)

	rec := fixture.post("name=a", "text/plain", "?api_key="+settings.APIKey)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
}

func TestSubmitAcceptsURLEncodedForm(t *testing.T) {
	t.Parallel()

	fixture := setupIntake(t, nopOracle(t))
	settings := seedIntakeAccount(t, fixture.db, 0, 100)

	rec := fixture.post("name=a&age=3", "application/x-www-form-urlencoded", "?api_key="+settings.APIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}

	var count int64
	fixture.db.Model(&models.Submission{}).Count(&count)
	if count != 1 {
		t.Fatalf("submissions = %d, want 1", count)
	}
}

func TestSubmitHighScoreBlocksAfterModeration(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":{"abuseConfidenceScore":80}}`)
	}))
	t.Cleanup(server.Close)

	fixture := setupIntake(t, server.URL)
	settings := seedIntakeAccount(t, fixture.db, 0, 100)

	rec := fixture.post(`{"name":"a"}`, "application/json", "?api_key="+settings.APIKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 before moderation completes", rec.Code)
	}
	fixture.drainModeration()

	var row models.Submission
	if errFind := fixture.db.First(&row).Error; errFind != nil {
		t.Fatalf("load submission: %v", errFind)
	}
	if row.AbuseConfidenceScore == nil || *row.AbuseConfidenceScore != 80 {
		t.Fatalf("score = %v, want 80", row.AbuseConfidenceScore)
	}
	if row.Blocked == nil || !*row.Blocked {
		t.Fatalf("expected blocked=true after moderation")
	}
	if row.BlockReason == nil || *row.BlockReason != "high abuse confidence score" {
		t.Fatalf("block reason = %v", row.BlockReason)
	}
}
