package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

type fileResponse struct {
	ID          int64             `json:"id"`
	Filename    string            `json:"filename"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type"`
	DownloadURL string            `json:"download_url"`
	Metadata    map[string]string `json:"metadata"`
	Owner       string            `json:"owner"`
	BucketName  string            `json:"bucket_name"`
	Version     int64             `json:"version"`
}

type tester struct {
	cfg     smokeConfig
	client  *vaultClient
	metrics *metricsCollector
}

func newTester(cfg smokeConfig) *tester {
	return &tester{
		cfg:     cfg,
		client:  newVaultClient(cfg.serverURL, cfg.token, cfg.httpTimeout, cfg.retryMax),
		metrics: newMetricsCollector(cfg.showSummary),
	}
}

func (t *tester) run(ctx context.Context) error {
	t.metrics.startStep("Single pass")
	err := t.fullPass(ctx)
	t.metrics.endStep(err)
	if err != nil {
		return fmt.Errorf("single pass: %w", err)
	}

	if t.cfg.parallel > 1 {
		t.metrics.startStep(fmt.Sprintf("%d passes in parallel", t.cfg.parallel))
		err = runParallel(t.cfg.parallel, func(int) error { return t.fullPass(ctx) })
		t.metrics.endStep(err)
		if err != nil {
			return fmt.Errorf("parallel passes: %w", err)
		}
	}

	t.metrics.startStep("Share")
	err = t.sharePass(ctx)
	t.metrics.endStep(err)
	if err != nil {
		return fmt.Errorf("share: %w", err)
	}
	return nil
}

// fullPass walks one file through its whole lifecycle.
func (t *tester) fullPass(ctx context.Context) error {
	data := make([]byte, t.cfg.fileSize)
	if _, err := rand.Read(data); err != nil {
		return fmt.Errorf("generate data: %w", err)
	}
	name := "smoke-" + uuid.NewString() + ".bin"

	file, err := t.upload(ctx, name, data, map[string]string{"smoke": "1"})
	if err != nil {
		return err
	}

	if err := t.checkListed(ctx, file.ID); err != nil {
		return err
	}
	if err := t.checkGet(ctx, file.ID, name); err != nil {
		return err
	}

	updated, err := t.updateMetadata(ctx, file.ID, file.Version, map[string]string{"stage": "updated"})
	if err != nil {
		return err
	}
	if _, err := t.updateMetadata(ctx, file.ID, file.Version, map[string]string{"stage": "stale"}); !isStatus(err, http.StatusConflict) {
		return fmt.Errorf("stale metadata update: expected 409, got %v", err)
	}
	if updated.Metadata["stage"] != "updated" || len(updated.Metadata) != 1 {
		return fmt.Errorf("metadata not replaced: %v", updated.Metadata)
	}

	if err := t.verifyDownload(ctx, file.ID, data); err != nil {
		return err
	}
	if err := t.deleteFile(ctx, file.ID); err != nil {
		return err
	}

	if err := t.checkGet(ctx, file.ID, name); !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("deleted file still readable: %v", err)
	}
	listed, err := t.isListed(ctx, file.ID)
	if err != nil {
		return err
	}
	if listed {
		return fmt.Errorf("deleted file %d still listed", file.ID)
	}
	return nil
}

func (t *tester) upload(ctx context.Context, name string, data []byte, md map[string]string) (*fileResponse, error) {
	start := time.Now()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", "application/octet-stream")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.WriteField("bucketName", t.cfg.bucket); err != nil {
		return nil, err
	}
	rawMD, err := json.Marshal(md)
	if err != nil {
		return nil, err
	}
	if err := w.WriteField("metadata", string(rawMD)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var file fileResponse
	_, err = t.client.doJSON(ctx, http.MethodPost, "/api/v1/storage/upload", body.Bytes(),
		http.Header{"Content-Type": []string{w.FormDataContentType()}}, &file)
	t.metrics.recordOperation("upload", time.Since(start), int64(len(data)), err)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	if file.Filename != name || file.Size != int64(len(data)) || file.Metadata["smoke"] != "1" {
		return nil, fmt.Errorf("upload response mismatch: %+v", file)
	}
	return &file, nil
}

// checkListed pages through the caller's files until id shows up.
func (t *tester) checkListed(ctx context.Context, id int64) error {
	listed, err := t.isListed(ctx, id)
	if err != nil {
		return err
	}
	if !listed {
		return fmt.Errorf("file %d missing from listing", id)
	}
	return nil
}

// isListed walks the owner's pages looking for id.
func (t *tester) isListed(ctx context.Context, id int64) (bool, error) {
	start := time.Now()
	defer func() { t.metrics.recordOperation("list", time.Since(start), 0, nil) }()

	const pageSize = 100
	for page := 0; ; page++ {
		var files []fileResponse
		resp, err := t.client.doJSON(ctx, http.MethodGet,
			fmt.Sprintf("/api/v1/storage/files?page=%d&size=%d", page, pageSize), nil, nil, &files)
		if err != nil {
			return false, fmt.Errorf("list failed: %w", err)
		}
		for _, f := range files {
			if f.ID == id {
				return true, nil
			}
		}
		total, _ := strconv.Atoi(resp.header.Get("X-Total-Count"))
		if len(files) == 0 || (page+1)*pageSize >= total {
			return false, nil
		}
	}
}

func (t *tester) checkGet(ctx context.Context, id int64, name string) error {
	start := time.Now()
	var file fileResponse
	_, err := t.client.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/v1/storage/files/%d", id), nil, nil, &file)
	t.metrics.recordOperation("info", time.Since(start), 0, err)
	if err != nil {
		return err
	}
	if file.Filename != name {
		return fmt.Errorf("get returned %q, expected %q", file.Filename, name)
	}
	return nil
}

func (t *tester) updateMetadata(ctx context.Context, id, version int64, md map[string]string) (*fileResponse, error) {
	start := time.Now()
	body, err := json.Marshal(map[string]interface{}{"metadata": md})
	if err != nil {
		return nil, err
	}

	header := jsonHeader()
	header.Set("If-Match", strconv.FormatInt(version, 10))

	var file fileResponse
	_, err = t.client.doJSON(ctx, http.MethodPut, fmt.Sprintf("/api/v1/storage/files/%d/metadata", id), body, header, &file)
	t.metrics.recordOperation("metadata", time.Since(start), 0, err)
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (t *tester) verifyDownload(ctx context.Context, id int64, expected []byte) error {
	start := time.Now()
	resp, err := t.client.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/storage/files/%d/download", id), nil, nil)
	if err != nil {
		t.metrics.recordOperation("download", time.Since(start), 0, err)
		return fmt.Errorf("download failed: %w", err)
	}

	if !bytes.Equal(resp.body, expected) {
		err := errors.New("downloaded data mismatch")
		t.metrics.recordOperation("download", time.Since(start), int64(len(resp.body)), err)
		return err
	}

	t.metrics.recordOperation("download", time.Since(start), int64(len(resp.body)), nil)
	return nil
}

func (t *tester) deleteFile(ctx context.Context, id int64) error {
	start := time.Now()
	_, err := t.client.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/storage/files/%d", id), nil, nil)
	t.metrics.recordOperation("delete", time.Since(start), 0, err)
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

// sharePass shares a fresh folder twice with the same address and expects
// both records back, in order.
func (t *tester) sharePass(ctx context.Context) error {
	folder := "https://files.example.com/smoke/" + uuid.NewString()
	emails := []string{"first@example.com", "second@example.com", "first@example.com"}

	start := time.Now()
	body, err := json.Marshal(map[string]interface{}{"folderpath": folder, "emails": emails})
	if err != nil {
		return err
	}
	_, err = t.client.do(ctx, http.MethodPost, "/share", body, jsonHeader())
	t.metrics.recordOperation("share", time.Since(start), 0, err)
	if err != nil {
		return fmt.Errorf("share failed: %w", err)
	}

	var got []string
	if _, err := t.client.doJSON(ctx, http.MethodGet, "/shared-emails?folderpath="+url.QueryEscape(folder), nil, nil, &got); err != nil {
		return fmt.Errorf("shared emails failed: %w", err)
	}
	if len(got) != len(emails) {
		return fmt.Errorf("shared emails: expected %v, got %v", emails, got)
	}
	for i := range emails {
		if got[i] != emails[i] {
			return fmt.Errorf("shared emails: expected %v, got %v", emails, got)
		}
	}

	var other []string
	if _, err := t.client.doJSON(ctx, http.MethodGet, "/shared-emails?folderpath="+url.QueryEscape(folder+"-other"), nil, nil, &other); err != nil {
		return fmt.Errorf("shared emails failed: %w", err)
	}
	if len(other) != 0 {
		return fmt.Errorf("unrelated folder returned %v", other)
	}
	return nil
}

func isStatus(err error, status int) bool {
	var se *statusError
	return errors.As(err, &se) && se.StatusCode == status
}

func runParallel(count int, function func(int) error) error {
	var waitGroup sync.WaitGroup
	errCh := make(chan error, count)

	for index := range count {
		waitGroup.Add(1)
		go func(idx int) {
			defer waitGroup.Done()
			if err := function(idx); err != nil {
				errCh <- err
			}
		}(index)
	}

	waitGroup.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}

	return nil
}
