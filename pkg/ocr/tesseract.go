//go:build ocr

package ocr

import "github.com/otiai10/gosseract/v2"

type tesseract struct {
	client *gosseract.Client
}

func newEngine() (engine, error) {
	return &tesseract{client: gosseract.NewClient()}, nil
}

func (t *tesseract) recognize(data []byte) (string, error) {
	if err := t.client.SetImageFromBytes(data); err != nil {
		return "", err
	}
	return t.client.Text()
}

func (t *tesseract) setLanguage(lang string) error {
	return t.client.SetLanguage(lang)
}

func (t *tesseract) close() error {
	return t.client.Close()
}
