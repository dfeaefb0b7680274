//go:build !ocr

package ocr

func newEngine() (engine, error) {
	return nil, ErrOCRNotEnabled
}
