package archive

import "context"

// FakeSaver records archived payloads in memory for tests.
type FakeSaver struct {
	Saved map[string][]byte
	Err   error
}

func (s *FakeSaver) Save(ctx context.Context, employerID int64, stateCode, filename string, data []byte) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	if s.Saved == nil {
		s.Saved = map[string][]byte{}
	}
	key := objectKey(employerID, stateCode, filename)
	s.Saved[key] = append([]byte(nil), data...)
	return key, nil
}
