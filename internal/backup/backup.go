// Package backup periodically archives the position-state snapshot and the
// SQLite ledger to S3-compatible object storage, adapted from the teacher's
// R2 backup service (archive, checksum, upload, rotate) but pointed at the
// Convert ledger instead of a stock-portfolio database set.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/convertbot/internal/config"
)

// FileMetadata describes one archived file's checksum and size.
type FileMetadata struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Metadata accompanies every uploaded archive.
type Metadata struct {
	Timestamp time.Time      `json:"timestamp"`
	Files     []FileMetadata `json:"files"`
}

// Service periodically uploads a tar.gz of the ledger DB and position-state
// JSON to the configured S3 bucket.
type Service struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      config.BackupConfig
	dataDir  string
	log      zerolog.Logger
}

// New builds a Service from an S3-compatible endpoint (AWS S3 or any
// S3-compatible provider reachable at cfg.Region's default endpoint).
// Returns nil, nil when backup is disabled in configuration, so callers can
// treat a nil Service as "not running" rather than branching on cfg.Enabled
// everywhere.
func New(ctx context.Context, cfg config.BackupConfig, dataDir string, accessKeyID, secretAccessKey string, log zerolog.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &Service{
		client:   client,
		uploader: manager.NewUploader(client),
		cfg:      cfg,
		dataDir:  dataDir,
		log:      log.With().Str("component", "backup").Logger(),
	}, nil
}

// objectKey names the archive stored in S3, as
// <prefix>/convertbot-backup-<YYYY-MM-DD-HHMMSS>.tar.gz (UTC).
func (s *Service) objectKey(timestamp time.Time) string {
	return fmt.Sprintf("%s/convertbot-backup-%s.tar.gz", s.cfg.Prefix, timestamp.UTC().Format("2006-01-02-150405"))
}

// Run archives position_state.json and ledger.db, uploads the archive, and
// rotates backups older than 7 days (keeping at least 3 regardless of age).
func (s *Service) Run(ctx context.Context) error {
	start := time.Now()
	s.log.Info().Msg("starting backup")

	stagingDir := filepath.Join(s.dataDir, "backup-staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	sources := []string{"ledger.db", "position_state.json"}
	meta := Metadata{Timestamp: time.Now().UTC()}

	for _, name := range sources {
		srcPath := filepath.Join(s.dataDir, name)
		info, err := os.Stat(srcPath)
		if os.IsNotExist(err) {
			s.log.Warn().Str("file", name).Msg("backup source missing, skipping")
			continue
		}
		if err != nil {
			return fmt.Errorf("stat %s: %w", name, err)
		}
		checksum, err := checksumFile(srcPath)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", name, err)
		}
		meta.Files = append(meta.Files, FileMetadata{Name: name, SizeBytes: info.Size(), Checksum: checksum})
	}

	metadataPath := filepath.Join(stagingDir, "backup-metadata.json")
	if err := writeMetadata(metadataPath, meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	archivePath := filepath.Join(stagingDir, "archive.tar.gz")
	if err := createArchive(archivePath, s.dataDir, metadataPath, meta); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer archiveFile.Close()

	key := s.objectKey(meta.Timestamp)
	if _, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   archiveFile,
	}); err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}

	s.log.Info().Dur("duration_ms", time.Since(start)).Str("key", key).Msg("backup uploaded")
	return s.rotate(ctx, 7)
}

// rotate deletes backups older than retentionDays, always keeping the 3
// newest regardless of age.
func (s *Service) rotate(ctx context.Context, retentionDays int) error {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(s.cfg.Prefix + "/convertbot-backup-"),
	})
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	type entry struct {
		key string
		ts  time.Time
	}
	var entries []entry
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		ts, ok := parseBackupTimestamp(*obj.Key)
		if !ok {
			continue
		}
		entries = append(entries, entry{key: *obj.Key, ts: ts})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ts.After(entries[j].ts) })

	const minKeep = 3
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for i, e := range entries {
		if i < minKeep || !e.ts.Before(cutoff) {
			continue
		}
		if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.cfg.Bucket),
			Key:    aws.String(e.key),
		}); err != nil {
			s.log.Warn().Err(err).Str("key", e.key).Msg("failed to delete old backup")
			continue
		}
		deleted++
	}
	s.log.Info().Int("deleted", deleted).Int("remaining", len(entries)-deleted).Msg("backup rotation completed")
	return nil
}

func parseBackupTimestamp(key string) (time.Time, bool) {
	base := filepath.Base(key)
	base = strings.TrimPrefix(base, "convertbot-backup-")
	base = strings.TrimSuffix(base, ".tar.gz")
	ts, err := time.Parse("2006-01-02-150405", base)
	return ts, err == nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeMetadata(path string, meta Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func createArchive(archivePath, dataDir, metadataPath string, meta Metadata) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	gz := gzip.NewWriter(archiveFile)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	for _, f := range meta.Files {
		if err := addFileToArchive(tw, filepath.Join(dataDir, f.Name), f.Name); err != nil {
			return err
		}
	}
	return addFileToArchive(tw, metadataPath, "backup-metadata.json")
}

func addFileToArchive(tw *tar.Writer, filePath, nameInArchive string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{Name: nameInArchive, Size: info.Size(), Mode: int64(info.Mode()), ModTime: info.ModTime()}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
