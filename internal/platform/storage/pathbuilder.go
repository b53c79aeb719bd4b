package storage

import (
	"fmt"
	"strings"
)

// FilePurpose captures the intent of a customization file for storage layout decisions.
type FilePurpose string

const (
	// PurposeSourceFile is a reference file the customer attaches to a request.
	PurposeSourceFile FilePurpose = "source"
	// PurposeFinalWork is a deliverable the designer submits for approval.
	PurposeFinalWork FilePurpose = "final"
	// PurposePreview is a low-resolution rendering shown before approval.
	PurposePreview FilePurpose = "preview"
)

// PathParams provide the identifiers needed to compose storage object keys.
type PathParams struct {
	RequestID    string
	UploadID     string
	SubmissionID string
	FileName     string
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose FilePurpose, params PathParams) (string, error) {
	requestID, err := validateSegment("requestID", params.RequestID)
	if err != nil {
		return "", err
	}
	fileName, err := validateSegment("fileName", params.FileName)
	if err != nil {
		return "", err
	}

	switch purpose {
	case PurposeSourceFile:
		uploadID, err := validateSegment("uploadID", params.UploadID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("customizations/%s/sources/%s/%s", requestID, uploadID, fileName), nil
	case PurposeFinalWork:
		submissionID, err := validateSegment("submissionID", params.SubmissionID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("customizations/%s/final/%s/%s", requestID, submissionID, fileName), nil
	case PurposePreview:
		submissionID, err := validateSegment("submissionID", params.SubmissionID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("customizations/%s/previews/%s/%s", requestID, submissionID, fileName), nil
	default:
		return "", fmt.Errorf("storage: unsupported file purpose %q", purpose)
	}
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
