package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"atsbeaters/internal/errors"
	"atsbeaters/internal/utils"
)

// FileProcessor handles common file operations
type FileProcessor struct {
	logger       *errors.Logger
	stdin        io.Reader
	maxFileSize  int64
	maxImageSize int64
}

// FileOption configures a FileProcessor
type FileOption func(*FileProcessor)

// WithStdin replaces os.Stdin as the source for "-"
func WithStdin(r io.Reader) FileOption {
	return func(fp *FileProcessor) { fp.stdin = r }
}

// WithLimits caps text and image input sizes; zero means no limit
func WithLimits(maxFileSize, maxImageSize int64) FileOption {
	return func(fp *FileProcessor) {
		fp.maxFileSize = maxFileSize
		fp.maxImageSize = maxImageSize
	}
}

// NewFileProcessor creates a new file processor instance
func NewFileProcessor(logger *errors.Logger, opts ...FileOption) *FileProcessor {
	fp := &FileProcessor{logger: logger, stdin: os.Stdin}
	for _, opt := range opts {
		opt(fp)
	}
	return fp
}

// ReadFile reads content from a file, or stdin for "-"
func (fp *FileProcessor) ReadFile(filename string) (string, error) {
	data, err := fp.readBytes(filename, fp.maxFileSize)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (fp *FileProcessor) readBytes(filename string, limit int64) ([]byte, error) {
	var r io.Reader
	if filename == utils.StdinName {
		r = fp.stdin
	} else {
		file, err := os.Open(filename)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.NewIOError(errors.ErrCodeFileNotFound,
					fmt.Sprintf("File not found: %s", filename), err)
			}
			return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
				fmt.Sprintf("Cannot read file: %s", filename), err)
		}
		defer func() {
			if err := file.Close(); err != nil && fp.logger != nil {
				fp.logger.Warn("Failed to close file", "filename", filename, "error", err)
			}
		}()
		r = file
	}

	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to read file content: %s", filename), err)
	}
	if limit > 0 && int64(len(content)) > limit {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s is larger than %s", filename, utils.FormatFileSize(limit)), nil)
	}

	return content, nil
}

// WriteFile writes content to a file with directory creation
func (fp *FileProcessor) WriteFile(filename string, content []byte) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return errors.NewIOError(errors.ErrCodeFileWriteFailed,
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}

	if err := os.WriteFile(filename, content, 0600); err != nil {
		return errors.NewIOError(errors.ErrCodeFileWriteFailed,
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}

	return nil
}

// ValidateAndReadFiles validates and reads multiple input files. At most
// one of them may be "-".
func (fp *FileProcessor) ValidateAndReadFiles(filenames ...string) ([]string, error) {
	contents := make([]string, len(filenames))
	stdinUsed := false

	for i, filename := range filenames {
		if filename == utils.StdinName {
			if stdinUsed {
				return nil, errors.NewValidationError(errors.ErrCodeInvalidInput,
					"standard input can only be used for one input", nil)
			}
			stdinUsed = true
		}

		if err := utils.ValidateInputFile(filename); err != nil {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidInput,
				fmt.Sprintf("Invalid file %s", filename), err)
		}

		if !utils.IsTextFile(filename) && fp.logger != nil {
			fp.logger.Warn("File may not be a text file", "filename", filename)
		}

		content, err := fp.ReadFile(filename)
		if err != nil {
			return nil, err
		}

		contents[i] = content
	}

	return contents, nil
}

// ReadImage reads an image file and returns its bytes and MIME type
func (fp *FileProcessor) ReadImage(filename string) ([]byte, string, error) {
	if err := utils.ValidateInputFile(filename); err != nil {
		return nil, "", errors.NewValidationError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Invalid image %s", filename), err)
	}
	data, err := fp.readBytes(filename, fp.maxImageSize)
	if err != nil {
		return nil, "", err
	}
	mime, err := utils.ImageMIMEType(data)
	if err != nil {
		return nil, "", errors.NewValidationError(errors.ErrCodeInvalidFormat, err.Error(), nil).
			WithContext("file", filename)
	}
	return data, mime, nil
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError(errors.ErrCodeInvalidInput,
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}

	return nil
}
