package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"dronegcs/app/codec"
	"dronegcs/app/helper"
	"dronegcs/app/media"
	"dronegcs/app/telemetry"
	"dronegcs/apperror"
	"dronegcs/models"
)

// CapturePhoto writes the latest frame, filtered, as a JPEG.
func (s *Session) CapturePhoto() (string, error) {
	frame, ok := s.GetLatestFrame()
	if !ok {
		return "", apperror.NoFrame
	}

	path, err := media.SavePhoto(s.cfg.Media.PhotosFolder, frame, s.frameFilter(), s.cfg.Media.JPEGQuality, time.Now())
	if err != nil {
		s.logger.LogError(err, "Error saving photo", "folder_name", s.cfg.Media.PhotosFolder)
		return "", apperror.ServerError.SetMessage("could not save photo").Wrap(err)
	}

	s.metrics.PhotosCaptured.Inc()
	s.logger.LogInfo("photo captured", "path", path, "seq", frame.Seq)
	s.hooks.Run(media.KindPhoto, path)
	return path, nil
}

// StartRecording starts a new recording under the videos folder. While one
// is already running it returns that recording's path and does nothing else.
func (s *Session) StartRecording() (string, error) {
	if st := s.State(); st != StateStreaming {
		return "", invalidState("record", st)
	}
	if current := s.recorder.Path(); current != "" {
		return current, nil
	}

	path, err := media.NewMediaPath(s.cfg.Media.VideosFolder, media.KindVideo, time.Now())
	if err != nil {
		s.logger.LogError(err, "Error choosing recording name", "folder_name", s.cfg.Media.VideosFolder)
		return "", apperror.ServerError.SetMessage("could not create videos folder").Wrap(err)
	}

	if _, err = s.recorder.StartRecording(path); err != nil {
		return "", err
	}
	return s.recorder.Path(), nil
}

// StopRecording returns once the file is complete. It returns "" when no
// recording was running.
func (s *Session) StopRecording() (string, error) {
	return s.recorder.StopRecording()
}

func (s *Session) PauseRecording() error {
	if !s.recorder.Pause() {
		return invalidState("pause", State(s.recorder.State()))
	}
	return nil
}

func (s *Session) ResumeRecording() error {
	if !s.recorder.Resume() {
		return invalidState("resume", State(s.recorder.State()))
	}
	return nil
}

func (s *Session) RecordingState() media.State {
	return s.recorder.State()
}

// FetchMedia lists recordings then photos, newest first within each.
func (s *Session) FetchMedia() ([]models.FileDetails, error) {
	s.logger.LogInfo("Fetching available media", "videos", s.cfg.Media.VideosFolder, "photos", s.cfg.Media.PhotosFolder)

	videos, err := helper.FetchFiles(s.cfg.Media.VideosFolder, "."+media.KindVideo.Extension(), string(media.KindVideo))
	if err != nil {
		s.logger.LogError(err, "Error reading videos folder", "folder_name", s.cfg.Media.VideosFolder)
		return nil, err
	}
	photos, err := helper.FetchFiles(s.cfg.Media.PhotosFolder, "."+media.KindPhoto.Extension(), string(media.KindPhoto))
	if err != nil {
		s.logger.LogError(err, "Error reading photos folder", "folder_name", s.cfg.Media.PhotosFolder)
		return nil, err
	}

	recording := filepath.Base(s.recorder.Path())
	var uploadingName string
	if s.uploader != nil {
		_, uploadingName = s.uploader.UploadStats()
	}

	files := append(videos, photos...)
	for i := range files {
		switch files[i].Filename {
		case recording:
			files[i].Recording = true
		case uploadingName:
			files[i].Uploading = true
		}
	}
	return files, nil
}

func (s *Session) mediaLocation(filename string) (folder, path string, err error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", "", apperror.InvalidRequest.SetMessage("invalid file name")
	}
	switch filepath.Ext(filename) {
	case "." + media.KindVideo.Extension():
		return "videos", filepath.Join(s.cfg.Media.VideosFolder, filename), nil
	case "." + media.KindPhoto.Extension():
		return "photos", filepath.Join(s.cfg.Media.PhotosFolder, filename), nil
	}
	return "", "", apperror.InvalidRequest.SetMessage("unsupported file type")
}

func (s *Session) requireUploader() error {
	if s.uploader == nil {
		return apperror.ServiceUnavailable.SetMessage("uploads are not configured")
	}
	return nil
}

// UploadMedia moves one photo or recording to S3.
func (s *Session) UploadMedia(filename string) error {
	if err := s.requireUploader(); err != nil {
		return err
	}
	folder, path, err := s.mediaLocation(filename)
	if err != nil {
		return err
	}
	if path == s.recorder.Path() {
		return apperror.ServiceUnavailable.SetMessage("Cannot upload recording while recording is in progress")
	}
	return s.uploader.UploadFile(folder, path)
}

// UploadAllMedia uploads every finished recording and photo.
func (s *Session) UploadAllMedia() (int, error) {
	if err := s.requireUploader(); err != nil {
		return 0, err
	}
	active := s.recorder.Path()
	videos, err := s.uploader.UploadFolder("videos", s.cfg.Media.VideosFolder, "."+media.KindVideo.Extension(),
		func(path string) bool { return path == active })
	if err != nil {
		return videos, err
	}
	photos, err := s.uploader.UploadFolder("photos", s.cfg.Media.PhotosFolder, "."+media.KindPhoto.Extension(), nil)
	return videos + photos, err
}

// UploadLogs ships rotated log files when uploads are configured.
func (s *Session) UploadLogs() {
	if s.uploader == nil {
		return
	}
	s.uploader.UploadLogs(s.cfg.LogFolder)
}

func (s *Session) Status() *models.Status {
	snap := s.GetTelemetry()
	status := &models.Status{
		SessionID:  s.id,
		State:      string(s.State()),
		Recording:  string(s.recorder.State()),
		Filter:     s.FilterName(),
		Telemetry:  snap,
		BatteryLow: snap.Battery != nil && *snap.Battery <= telemetry.DefaultBatteryThreshold,
		FlightTime: codec.FormatFlightTime(snap.FlightTimeSeconds),
	}

	s.mu.RLock()
	if s.ingest != nil {
		status.Streaming = s.ingest.Running()
	}
	s.mu.RUnlock()

	if s.uploader != nil {
		status.Uploading, _ = s.uploader.UploadStats()
	}

	dir := s.cfg.Media.VideosFolder
	if _, err := os.Stat(dir); err != nil {
		dir = "."
	}
	usage, free, err := helper.DiskUsage(dir)
	if err != nil {
		s.logger.LogError(err, "Error getting disk usage")
	} else {
		status.DiskUsage, status.DiskFree = usage, free
	}
	return status
}

func (s *Session) logMedia(kind media.MediaKind, path string) {
	if s.flightLog == nil {
		return
	}
	if err := s.flightLog.RecordMedia(string(kind), path, time.Now()); err != nil {
		s.logger.LogError(err, "Error recording media in flight log", "path", path)
	}
}

// autoUploadBacklog bounds how many captured files may wait for upload.
const autoUploadBacklog = 64

// autoUpload queues a finished file for the upload worker. Files are
// uploaded one at a time in capture order.
func (s *Session) autoUpload(kind media.MediaKind, path string) {
	folder := "photos"
	if kind == media.KindVideo {
		folder = "videos"
	}

	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.pendingClosed {
		s.logger.LogWarning(errors.New("session terminated"), "Automatic upload skipped", "path", path)
		return
	}
	s.pending <- pendingUpload{folder: folder, path: path}
}

func (s *Session) uploadPending() {
	defer s.uploads.Done()
	for item := range s.pending {
		// a manual upload may hold the uploader; wait for it rather than drop the file
		if err := s.uploader.UploadFileWhenIdle(context.Background(), item.folder, item.path); err != nil {
			s.logger.LogError(err, "Automatic upload failed", "path", item.path)
		}
	}
}

func (s *Session) closePending() {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if s.pending == nil || s.pendingClosed {
		return
	}
	s.pendingClosed = true
	close(s.pending)
}
