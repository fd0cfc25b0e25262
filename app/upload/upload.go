// Package upload ships photos, recordings and rotated logs to S3.
package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"dronegcs/app/metrics"
	"dronegcs/apperror"
	"dronegcs/config"
	"dronegcs/logger"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// ObjectUploader is the part of s3manager.Uploader used here.
type ObjectUploader interface {
	Upload(input *s3manager.UploadInput, options ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

type Uploader struct {
	bucket   string
	prefix   string
	uploader ObjectUploader
	logger   *logger.Logger
	metrics  *metrics.Metrics

	// slot holds one token while an upload runs.
	slot chan struct{}

	mu          sync.Mutex
	isUploading bool
	uploadName  string
}

func NewUploader(s3config config.S3, logger *logger.Logger, m *metrics.Metrics) (*Uploader, error) {
	awsConfig := &aws.Config{
		Region:           aws.String(s3config.Region),
		Credentials:      credentials.NewStaticCredentials(s3config.AccessKey, s3config.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	}

	if s3config.EndpointUrl != "" {
		awsConfig.Endpoint = aws.String(s3config.EndpointUrl)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, err
	}

	deviceHostName, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("getting device hostname: %w", err)
	}

	return NewWithClient(s3manager.NewUploader(sess), s3config.Bucket, deviceHostName, logger, m), nil
}

// NewWithClient builds an Uploader over any ObjectUploader. Keys are placed
// under prefix.
func NewWithClient(client ObjectUploader, bucket, prefix string, logger *logger.Logger, m *metrics.Metrics) *Uploader {
	return &Uploader{
		bucket:   bucket,
		prefix:   prefix,
		uploader: client,
		logger:   logger,
		metrics:  m,
		slot:     make(chan struct{}, 1),
	}
}

// UploadStats reports whether an upload is running and which file it is on.
func (u *Uploader) UploadStats() (bool, string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.isUploading, u.uploadName
}

// ObjectKey is "<prefix>/<folder>/<filename>".
func (u *Uploader) ObjectKey(folder, filename string) string {
	return strings.Join([]string{u.prefix, folder, filepath.Base(filename)}, "/")
}

func contentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".avi":
		return "video/x-msvideo"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "text/plain"
	}
}

func (u *Uploader) begin(name string) error {
	select {
	case u.slot <- struct{}{}:
	default:
		u.logger.LogError(errors.New("upload in progress"), "Cannot upload while another upload is in progress")
		return apperror.ServiceUnavailable.SetMessage("Cannot upload while another upload is in progress")
	}
	u.setBusy(name)
	return nil
}

// await is begin for callers that can wait their turn.
func (u *Uploader) await(ctx context.Context, name string) error {
	select {
	case u.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	u.setBusy(name)
	return nil
}

func (u *Uploader) setBusy(name string) {
	u.mu.Lock()
	u.isUploading = true
	u.uploadName = name
	u.mu.Unlock()
}

func (u *Uploader) setName(name string) {
	u.mu.Lock()
	u.uploadName = name
	u.mu.Unlock()
}

func (u *Uploader) end() {
	u.mu.Lock()
	u.isUploading = false
	u.uploadName = ""
	u.mu.Unlock()
	<-u.slot
}

// UploadFile uploads path under folder and removes the local copy.
func (u *Uploader) UploadFile(folder, path string) error {
	if err := u.begin(filepath.Base(path)); err != nil {
		return err
	}
	defer u.end()

	return u.put(folder, path)
}

// UploadFileWhenIdle is UploadFile but waits for a running upload to finish
// instead of refusing.
func (u *Uploader) UploadFileWhenIdle(ctx context.Context, folder, path string) error {
	if err := u.await(ctx, filepath.Base(path)); err != nil {
		return err
	}
	defer u.end()

	return u.put(folder, path)
}

func (u *Uploader) put(folder, path string) error {
	filename := filepath.Base(path)

	fd, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			u.logger.LogError(err, "Provided file does not exist", "file_name", path)
			return apperror.NotFound
		}
		u.logger.LogError(err, "Error reading file", "file_name", path)
		return apperror.ServerError
	}

	_, err = u.uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(u.ObjectKey(folder, filename)),
		ACL:         aws.String("private"),
		Body:        fd,
		ContentType: aws.String(contentType(filename)),
	})
	_ = fd.Close()

	if err != nil {
		u.metrics.UploadsTotal.WithLabelValues("error").Inc()
		u.logger.LogError(err, "Error uploading file to S3", "file_name", path)
		return apperror.ServerError.Wrap(err)
	}
	u.metrics.UploadsTotal.WithLabelValues("ok").Inc()
	u.logger.LogInfo("Successful upload to S3", "file_name", path)

	if err = os.Remove(path); err != nil {
		u.logger.LogError(err, "Error deleting file", "file_name", path)
		return apperror.ServerError
	}

	u.logger.LogInfo("Successful deletion of file", "file_name", path)
	return nil
}

// UploadFolder uploads every file in dir with extension ext, skipping any
// for which skip returns true. Individual failures are logged and skipped.
func (u *Uploader) UploadFolder(folder, dir, ext string, skip func(path string) bool) (int, error) {
	if err := u.begin(""); err != nil {
		return 0, err
	}
	defer u.end()

	u.logger.LogInfo("Uploading folder to S3", "folder_name", dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		u.logger.LogError(err, "Error reading folder", "folder_name", dir)
		return 0, apperror.ServerError
	}

	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ext {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if skip != nil && skip(path) {
			continue
		}
		u.setName(entry.Name())
		if err = u.put(folder, path); err != nil {
			continue
		}
		uploaded++
	}
	return uploaded, nil
}

// UploadLogs uploads rotated logs, leaving the newest (current) one behind.
func (u *Uploader) UploadLogs(logFolder string) {
	u.logger.LogInfo("Uploading logs to S3", "bucket", u.bucket, "folder", logFolder)

	entries, err := os.ReadDir(logFolder)
	if err != nil {
		u.logger.LogError(err, "Error reading log folder", "folder", logFolder)
		return
	}

	var filenames []string
	for _, entry := range entries {
		if !entry.IsDir() {
			filenames = append(filenames, entry.Name())
		}
	}
	if len(filenames) < 2 {
		return
	}

	sort.Strings(filenames)
	filenames = filenames[:len(filenames)-1] // the last one is the current log file

	for _, filename := range filenames {
		_ = u.put("logs", filepath.Join(logFolder, filename))
	}
}
