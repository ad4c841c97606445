package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/wayquest/backend/core"
	"github.com/wayquest/backend/core/journey"
	"github.com/wayquest/backend/core/progress"
	eventsvc "github.com/wayquest/backend/services/events"
	dummydb "github.com/wayquest/backend/storage/database/dummy"
)

type httpErr struct {
	Error interface{} `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
	extra    interface{}
}

type testLogger struct{}

func (testLogger) Enable(bool)                  {}
func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Fatal(string, ...interface{}) {}

var testAnchor = journey.Coordinate{Lat: 48.8584, Lon: 2.2945}

func testConfig() *core.Config {
	return &core.Config{
		TestMode: true,
		Progress: core.ProgressConfig{
			MaxEvidenceAge:   5 * time.Minute,
			PassingThreshold: 0.5,
			BonusPolicy:      progress.BonusPolicyThreshold,
			ResetRetention:   "archive",
		},
	}
}

// setupServer seeds a 3-step journey (step "s2" carries a 2-question quiz)
// and returns a fully wired Server backed by the in-memory store.
func setupServer(t *testing.T) (Server, *dummydb.DB) {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setupServer() failed: %v", err)
	}

	steps := []journey.Step{
		{ID: "s1", JourneyID: "jny1", OrderIndex: 1, Coordinate: testAnchor, RadiusM: 50, Points: 10},
		{ID: "s2", JourneyID: "jny1", OrderIndex: 2, Coordinate: testAnchor, RadiusM: 50, Points: 10},
		{ID: "s3", JourneyID: "jny1", OrderIndex: 3, Coordinate: testAnchor, RadiusM: 50, Points: 10},
	}
	questions := map[string][]journey.QuizQuestion{
		"s2": {
			{ID: "q1", StepID: "s2", Type: journey.QuestionMultipleChoice, CorrectAnswer: "B", Options: []string{"A", "B", "C"}, BonusPoints: 5},
			{ID: "q2", StepID: "s2", Type: journey.QuestionFreeText, CorrectAnswer: "Notre Dame"},
		},
	}
	db.AddJourney(journey.Journey{ID: "jny1", Name: "Historic Paris"}, steps, questions)

	conf := testConfig()
	logger := testLogger{}
	journeySvc := journey.NewService(dummydb.NewJourneyRepository(db))
	progressSvc := progress.NewService(dummydb.NewProgressRepository(db), journeySvc, eventsvc.NewConsoleServiceMock(), logger, conf)

	validate := validator.New()
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	core.InitValidators(validate, translator)

	eventsvc.ClearSentEvents()

	return NewServer(&Deps{
		Conf:        conf,
		Logger:      logger,
		JourneySvc:  journeySvc,
		ProgressSvc: progressSvc,
		Validate:    validate,
		Translator:  translator,
	}), db
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return req, rec
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
