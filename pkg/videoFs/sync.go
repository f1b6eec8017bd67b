// Package videoFs manages the on-disk media library: listing playable
// files and mirroring them down from an S3 bucket on boards that are
// provisioned remotely.
package videoFs

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/mjdilworth/pickle-sub002/pkg/video"
)

// SyncFromS3 mirrors every object under bucket/prefix into dir, skipping
// files that already exist locally with a matching size. It returns the
// local paths of everything it downloaded.
func SyncFromS3(bucket, prefix, dir string) ([]string, error) {
	log.Printf("videoFs: syncing s3://%s/%s into %s", bucket, prefix, dir)

	region := os.Getenv("AWS_DEFAULT_REGION")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if region == "" || accessKey == "" || secretKey == "" {
		return nil, errors.New("AWS_DEFAULT_REGION, AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must all be set")
	}

	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create aws session")
	}
	client := s3.New(sess)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create media directory %s", dir)
	}

	var downloaded []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	err = client.ListObjectsV2Pages(listInput, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			if obj.Key == nil || strings.HasSuffix(*obj.Key, "/") {
				continue
			}
			localPath := filepath.Join(dir, filepath.Base(*obj.Key))
			if upToDate(localPath, obj.Size) {
				continue
			}
			if err := fetchObject(client, bucket, *obj.Key, localPath); err != nil {
				log.Printf("videoFs: %s: %v", *obj.Key, err)
				continue
			}
			downloaded = append(downloaded, localPath)
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "list bucket objects")
	}

	log.Printf("videoFs: sync complete, %d new file(s)", len(downloaded))
	return downloaded, nil
}

func upToDate(path string, size *int64) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return size != nil && info.Size() == *size
}

func fetchObject(client *s3.S3, bucket, key, localPath string) error {
	result, err := client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrap(err, "get object")
	}
	defer result.Body.Close()

	// Write via a temp file so a power cut mid-download never leaves a
	// truncated video in the library.
	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".download-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	if _, err := io.Copy(tmp, result.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "write object body")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), localPath)
}

// ListPlayable returns the media files in dir that the demuxer recognizes,
// sorted by name.
func ListPlayable(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read media directory %s", dir)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if video.DetectContainer(path) != video.ContainerUnknown {
			files = append(files, path)
		}
	}
	log.Printf("videoFs: found %d playable file(s) in %s", len(files), dir)
	return files, nil
}
