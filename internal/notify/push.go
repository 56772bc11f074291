package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/taxi-dispatch/internal/models"
)

// PushNotifier tries the driver's live websocket first and falls back to
// posting the notice to an HTTP push gateway.
type PushNotifier struct {
	Endpoint string
	Client   *http.Client
	WS       *WSRegistry
}

func NewPushNotifier(endpoint string, ws *WSRegistry) *PushNotifier {
	return &PushNotifier{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: 3 * time.Second},
		WS:       ws,
	}
}

func (p *PushNotifier) DriverAssigned(ctx context.Context, job models.Job, driver models.Driver, cfg models.TenantConfig) error {
	if p.WS != nil {
		if err := p.WS.DriverAssigned(ctx, job, driver, cfg); err == nil {
			return nil
		}
	}
	if p.Endpoint == "" {
		return ErrNoSession
	}
	b, err := json.Marshal(noticeFor(job, driver, cfg))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: push gateway returned %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier writes notices to the log. Used for local runs where no
// delivery channel is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l *LogNotifier) DriverAssigned(_ context.Context, job models.Job, driver models.Driver, _ models.TenantConfig) error {
	log := l.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("driver assigned",
		"job_id", job.ID,
		"driver_callsign", driver.Callsign,
		"pickup", job.PickupAddress)
	return nil
}
