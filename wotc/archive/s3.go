package archive

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials/stscreds"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// S3Saver archives payloads to an S3 bucket. Endpoint is overridable for
// localstack; AssumeRoleArn supports cross-account archive buckets.
type S3Saver struct {
	Bucket        string
	Endpoint      string
	AssumeRoleArn string
	Logger        logrus.FieldLogger
}

func (s *S3Saver) Save(ctx context.Context, employerID int64, stateCode, filename string, data []byte) (string, error) {
	sess, err := s.createSession()
	if err != nil {
		return "", errors.Wrap(err, "creating aws session")
	}

	key := objectKey(employerID, stateCode, filename)
	uploader := s3manager.NewUploader(sess)
	_, err = uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:               aws.String(s.Bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(data),
		ServerSideEncryption: aws.String("AES256"),
	})
	if err != nil {
		return "", errors.Wrapf(err, "uploading archive object %s", key)
	}

	location := fmt.Sprintf("s3://%s/%s", s.Bucket, key)
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"employer_id": employerID,
			"state_code":  stateCode,
			"location":    location,
		}).Info("payload archived")
	}
	return location, nil
}

func (s *S3Saver) createSession() (*session.Session, error) {
	sess := session.Must(session.NewSession())

	config := aws.Config{
		Region: aws.String("us-east-1"),
	}
	if s.Endpoint != "" {
		config.S3ForcePathStyle = aws.Bool(true)
		config.Endpoint = &s.Endpoint
	}
	if s.AssumeRoleArn != "" {
		config.Credentials = stscreds.NewCredentials(sess, s.AssumeRoleArn)
	}

	return session.NewSessionWithOptions(session.Options{
		Config: config,
	})
}
