package eventsvc

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/pkg/errors"

	"github.com/wayquest/backend/core"
)

var (
	// SentEvents records everything published by the mock service, for tests.
	SentEvents = make([]core.ProgressEvent, 0)
	mu         sync.Mutex
)

// consoleService prints events to stdout instead of delivering them anywhere.
// Used in DEV mode and by tests.
type consoleService struct {
	appName       string
	disableOutput bool
	record        bool
}

var _ core.EventService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config) core.EventService {
	return &consoleService{appName: conf.AppName}
}

// NewConsoleServiceMock records published events in SentEvents and prints nothing.
func NewConsoleServiceMock() core.EventService {
	return &consoleService{disableOutput: true, record: true}
}

// ClearSentEvents resets the mock recording between tests.
func ClearSentEvents() {
	mu.Lock()
	defer mu.Unlock()
	SentEvents = SentEvents[:0]
}

func (svc consoleService) PublishEvents(events ...*core.ProgressEvent) {
	for _, evt := range events {
		if svc.record {
			mu.Lock()
			SentEvents = append(SentEvents, *evt)
			mu.Unlock()
		}
		if svc.disableOutput {
			continue
		}
		data, err := json.Marshal(evt)
		if err != nil {
			log.Printf("%+v", errors.Wrap(err, "marshalling event"))
			continue
		}
		log.Printf("[%s] event: %s", svc.appName, data)
	}
}
