package controller

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"dronegcs/app"
	"dronegcs/app/codec"
	"dronegcs/apperror"
	"dronegcs/logger"
	"dronegcs/models"
	"dronegcs/web/helper"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	defaultPushInterval = 200 * time.Millisecond
	previewQuality      = 75
	writeTimeout        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type Controller struct {
	logger  *logger.Logger
	session *app.Session

	// PushInterval paces the MJPEG preview and the telemetry feed.
	PushInterval time.Duration
}

func NewController(session *app.Session, logger *logger.Logger) *Controller {
	return &Controller{
		session:      session,
		logger:       logger,
		PushInterval: defaultPushInterval,
	}
}

func (c *Controller) DeviceStatus(w http.ResponseWriter, _ *http.Request) {
	c.logger.LogDebug("fetching device status")
	helper.ReturnSuccess(w, c.session.Status())
}

type telemetryPayload struct {
	Snapshot codec.Snapshot    `json:"snapshot"`
	Display  map[string]string `json:"display"`
}

func newTelemetryPayload(snap codec.Snapshot) telemetryPayload {
	return telemetryPayload{Snapshot: snap, Display: snap.Strings()}
}

func (c *Controller) Telemetry(w http.ResponseWriter, _ *http.Request) {
	helper.ReturnSuccess(w, newTelemetryPayload(c.session.GetTelemetry()))
}

// TelemetryFeed pushes every new snapshot over a websocket until the client
// goes away.
func (c *Controller) TelemetryFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.LogError(err, "websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	// reader goroutine only exists to notice the client closing
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(c.PushInterval)
	defer ticker.Stop()

	var last time.Time
	first := true
	for {
		snap := c.session.GetTelemetry()
		if first || !snap.Timestamp.Equal(last) {
			first = false
			last = snap.Timestamp
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err = conn.WriteJSON(newTelemetryPayload(snap)); err != nil {
				c.logger.LogDebug("telemetry feed closed", "error", err)
				return
			}
		}

		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Controller) Connect(w http.ResponseWriter, _ *http.Request) {
	if err := c.session.Connect(); err != nil {
		helper.ReturnFailure(w, err)
		return
	}
	helper.ReturnSuccess(w, map[string]string{"state": string(c.session.State())})
}

func (c *Controller) BeginStreaming(w http.ResponseWriter, _ *http.Request) {
	if err := c.session.BeginStreaming(); err != nil {
		helper.ReturnFailure(w, err)
		return
	}
	helper.ReturnSuccess(w, map[string]string{"state": string(c.session.State())})
}

func (c *Controller) Teardown(w http.ResponseWriter, _ *http.Request) {
	if err := c.session.Teardown(); err != nil {
		helper.ReturnFailure(w, err)
		return
	}
	helper.ReturnSuccess(w, map[string]string{"state": string(c.session.State())})
}

func (c *Controller) SendCommand(w http.ResponseWriter, r *http.Request) {
	var req models.CommandRequest
	if err := helper.ReadJSON(r, &req); err != nil {
		c.logger.LogError(err, "Error getting command from request")
		helper.ReturnFailure(w, err)
		return
	}
	if req.Command == "" {
		helper.ReturnFailure(w, apperror.InvalidRequest.SetMessage("command is required"))
		return
	}

	reply, err := c.session.Send(req.Command)
	if err != nil {
		c.logger.LogError(err, "Error sending command", "command", req.Command)
		helper.ReturnFailure(w, err)
		return
	}
	helper.ReturnSuccess(w, models.CommandResponse{Command: req.Command, Response: reply})
}

func (c *Controller) CapturePhoto(w http.ResponseWriter, _ *http.Request) {
	path, err := c.session.CapturePhoto()
	if err != nil {
		helper.ReturnFailure(w, err)
		return
	}
	helper.ReturnSuccess(w, models.MediaResponse{Path: path})
}

func (c *Controller) StartRecording(w http.ResponseWriter, _ *http.Request) {
	path, err := c.session.StartRecording()
	if err != nil {
		c.logger.LogError(err, "Error starting recording")
		helper.ReturnFailure(w, err)
		return
	}
	helper.ReturnSuccess(w, models.MediaResponse{Path: path})
}

func (c *Controller) StopRecording(w http.ResponseWriter, _ *http.Request) {
	c.logger.LogInfo("stopping recording")
	path, err := c.session.StopRecording()
	if err != nil {
		helper.ReturnFailure(w, err)
		return
	}
	helper.ReturnSuccess(w, models.MediaResponse{Path: path})
}

func (c *Controller) PauseRecording(w http.ResponseWriter, _ *http.Request) {
	if err := c.session.PauseRecording(); err != nil {
		helper.ReturnFailure(w, err)
		return
	}
	helper.ReturnSuccess(w, nil)
}

func (c *Controller) ResumeRecording(w http.ResponseWriter, _ *http.Request) {
	if err := c.session.ResumeRecording(); err != nil {
		helper.ReturnFailure(w, err)
		return
	}
	helper.ReturnSuccess(w, nil)
}

func (c *Controller) SetFilter(w http.ResponseWriter, r *http.Request) {
	var req models.FilterRequest
	if err := helper.ReadJSON(r, &req); err != nil {
		helper.ReturnFailure(w, err)
		return
	}
	if err := c.session.SetFrameFilterByName(req.Name); err != nil {
		helper.ReturnFailure(w, err)
		return
	}
	helper.ReturnSuccess(w, map[string]string{"filter": c.session.FilterName()})
}

// ShowStream serves the latest frames as multipart MJPEG for a browser preview.
func (c *Controller) ShowStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := c.session.GetLatestFrame(); !ok {
		helper.ReturnFailure(w, apperror.NoFrame)
		return
	}

	mimeWriter := multipart.NewWriter(w)
	w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mimeWriter.Boundary()))
	partHeader := make(textproto.MIMEHeader)
	partHeader.Add("Content-Type", "image/jpeg")
	flusher, _ := w.(http.Flusher)

	ticker := time.NewTicker(c.PushInterval)
	defer ticker.Stop()

	var lastSeq uint64
	for {
		if frame, ok := c.session.GetLatestFrame(); ok && frame.Seq != lastSeq {
			lastSeq = frame.Seq
			data, err := codec.EncodeJPEG(frame, previewQuality)
			if err != nil {
				c.logger.LogError(err, "Error encoding preview frame")
				continue
			}
			part, err := mimeWriter.CreatePart(partHeader)
			if err != nil {
				c.logger.LogError(err, "Error creating part")
				return
			}
			if _, err = part.Write(data); err != nil {
				c.logger.LogDebug("preview client went away", "error", err)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Controller) UploadFile(w http.ResponseWriter, r *http.Request) {
	c.logger.LogInfo("upload file request received")

	var file models.UploadRequest
	if err := helper.ReadJSON(r, &file); err != nil {
		helper.ReturnFailure(w, err)
		return
	}

	if err := c.session.UploadMedia(file.FileName); err != nil {
		helper.ReturnFailure(w, err)
		return
	}

	helper.ReturnSuccess(w, nil)
}

func (c *Controller) ListFiles(w http.ResponseWriter, _ *http.Request) {
	c.logger.LogInfo("list files request received")

	files, err := c.session.FetchMedia()
	if err != nil {
		helper.ReturnFailure(w, err)
		return
	}
	if files == nil {
		files = []models.FileDetails{}
	}

	helper.ReturnSuccess(w, files)
}

func (c *Controller) UploadAllFiles(w http.ResponseWriter, _ *http.Request) {
	c.logger.LogInfo("upload all files request received")
	n, err := c.session.UploadAllMedia()
	if err != nil {
		helper.ReturnFailure(w, err)
		return
	}

	helper.ReturnSuccess(w, map[string]int{"uploaded": n})
}

func (c *Controller) ListFlights(w http.ResponseWriter, _ *http.Request) {
	flights, err := c.session.Flights()
	if err != nil {
		helper.ReturnFailure(w, err)
		return
	}
	helper.ReturnSuccess(w, flights)
}

func (c *Controller) FlightMedia(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	media, err := c.session.FlightMedia(id)
	if err != nil {
		helper.ReturnFailure(w, err)
		return
	}
	helper.ReturnSuccess(w, media)
}
