package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const drivePageSize = 100

// DriveOptions configures the Google Drive provider
type DriveOptions struct {
	CredentialsFile string   // OAuth client secrets downloaded from the cloud console
	TokenFile       string   // previously authorised token, JSON encoded oauth2.Token
	Scopes          []string // defaults to drive.file + drive.readonly
}

// DriveProvider stores session files in Google Drive.
type DriveProvider struct {
	svc    *drive.Service
	logger *logrus.Logger
}

// NewDriveProvider builds an authorised Drive client. The interactive consent
// flow is not supported: a missing or unusable token yields ErrUnavailable.
func NewDriveProvider(ctx context.Context, opts DriveOptions, logger *logrus.Logger) (*DriveProvider, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if len(opts.Scopes) == 0 {
		opts.Scopes = []string{drive.DriveFileScope, drive.DriveReadonlyScope}
	}

	secrets, err := os.ReadFile(opts.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: read credentials: %v", ErrUnavailable, err)
	}
	config, err := google.ConfigFromJSON(secrets, opts.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: parse credentials: %v", ErrUnavailable, err)
	}

	token, err := loadToken(opts.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !token.Valid() && token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token in %s expired and cannot be refreshed", ErrUnavailable, opts.TokenFile)
	}

	source := &persistingTokenSource{
		base:   config.TokenSource(ctx, token),
		path:   opts.TokenFile,
		last:   token.AccessToken,
		logger: logger,
	}
	httpClient := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(token, source))

	svc, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("%w: create drive service: %v", ErrUnavailable, err)
	}
	logger.Info("Google Drive service created successfully")
	return NewDriveProviderWithService(svc, logger), nil
}

// NewDriveProviderWithService wraps an already configured Drive service.
func NewDriveProviderWithService(svc *drive.Service, logger *logrus.Logger) *DriveProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &DriveProvider{svc: svc, logger: logger}
}

// ListQuery builds the Drive search expression for mimeType files in folderID.
func ListQuery(folderID, mimeType string) string {
	return fmt.Sprintf("'%s' in parents and mimeType='%s' and trashed=false", folderID, mimeType)
}

// List follows page tokens until the folder is exhausted.
func (p *DriveProvider) List(ctx context.Context, folderID, mimeType string) ([]RemoteFile, error) {
	if p == nil || p.svc == nil {
		return nil, ErrUnavailable
	}

	var (
		files     []RemoteFile
		pageToken string
	)
	for {
		call := p.svc.Files.List().
			Q(ListQuery(folderID, mimeType)).
			PageSize(drivePageSize).
			Fields("nextPageToken, files(id, name)").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list folder %s: %w", folderID, err)
		}
		for _, f := range res.Files {
			files = append(files, RemoteFile{ID: f.Id, Name: f.Name})
		}
		if res.NextPageToken == "" {
			break
		}
		pageToken = res.NextPageToken
	}

	p.logger.WithFields(logrus.Fields{
		"folder": folderID,
		"count":  len(files),
	}).Info("Listed CSV files")
	return files, nil
}

// Upload creates a new Drive file named after the local base name.
func (p *DriveProvider) Upload(ctx context.Context, localPath, parentFolderID string) (string, error) {
	if p == nil || p.svc == nil {
		return "", ErrUnavailable
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	meta := &drive.File{
		Name:     filepath.Base(localPath),
		MimeType: CSVMimeType,
	}
	if parentFolderID != "" {
		meta.Parents = []string{parentFolderID}
	}

	created, err := p.svc.Files.Create(meta).
		Media(f, googleapi.ContentType(CSVMimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	return created.Id, nil
}

// Download streams the file content into localPath.
func (p *DriveProvider) Download(ctx context.Context, id, localPath string) error {
	if p == nil || p.svc == nil {
		return ErrUnavailable
	}

	resp, err := p.svc.Files.Get(id).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %d", id, resp.StatusCode)
	}
	return writeFileAtomic(localPath, resp.Body)
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", path, err)
	}
	if token.AccessToken == "" && token.RefreshToken == "" {
		return nil, errors.New("token file holds no credentials")
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// persistingTokenSource writes refreshed tokens back to the token file.
type persistingTokenSource struct {
	base   oauth2.TokenSource
	path   string
	logger *logrus.Logger

	mu   sync.Mutex
	last string
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.last = token.AccessToken
		if err := saveToken(s.path, token); err != nil {
			s.logger.WithError(err).Warn("Failed to save refreshed token")
		} else {
			s.logger.WithField("path", s.path).Info("Google Drive token saved")
		}
	}
	return token, nil
}
