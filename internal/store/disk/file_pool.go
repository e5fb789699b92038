package disk

import (
	"fmt"
	"os"
	"path/filepath"
)

// filePool caps how many free message-body files stay open beyond the
// live set: up to maxOpen are kept for reuse, anything past that is
// closed and unlinked on free.
type filePool struct {
	dir     string
	maxOpen int
	open    map[string]*os.File // filename -> open handle
	freeLRU []string            // filenames eligible for reuse, oldest first
}

func newFilePool(dir string, maxOpen int) *filePool {
	return &filePool{dir: dir, maxOpen: maxOpen, open: make(map[string]*os.File)}
}

func (p *filePool) path(filename string) string {
	return filepath.Join(p.dir, filename)
}

func (p *filePool) handle(filename string) (*os.File, error) {
	if f, ok := p.open[filename]; ok {
		return f, nil
	}
	f, err := os.OpenFile(p.path(filename), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open message file %q: %w", filename, err)
	}
	p.open[filename] = f
	return f, nil
}

// write stores body in filename: seek 0, write, flush, truncate to
// body length. A reused filename is live again, so it leaves freeLRU.
func (p *filePool) write(filename string, body []byte) error {
	for i, fn := range p.freeLRU {
		if fn == filename {
			p.freeLRU = append(p.freeLRU[:i], p.freeLRU[i+1:]...)
			break
		}
	}
	f, err := p.handle(filename)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(body, 0); err != nil {
		return fmt.Errorf("write message file %q: %w", filename, err)
	}
	if err := f.Truncate(int64(len(body))); err != nil {
		return fmt.Errorf("truncate message file %q: %w", filename, err)
	}
	return f.Sync()
}

func (p *filePool) read(filename string) ([]byte, error) {
	f, err := p.handle(filename)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat message file %q: %w", filename, err)
	}
	body := make([]byte, info.Size())
	if _, err := f.ReadAt(body, 0); err != nil {
		return nil, fmt.Errorf("read message file %q: %w", filename, err)
	}
	return body, nil
}

// free returns filename to the reuse pool, evicting the oldest free
// file (closing and unlinking it) once maxOpen is exceeded.
func (p *filePool) free(filename string) {
	p.freeLRU = append(p.freeLRU, filename)
	for len(p.freeLRU) > p.maxOpen {
		victim := p.freeLRU[0]
		p.freeLRU = p.freeLRU[1:]
		if f, ok := p.open[victim]; ok {
			f.Close()
			delete(p.open, victim)
		}
		os.Remove(p.path(victim))
	}
}

func (p *filePool) closeAll() {
	for _, f := range p.open {
		f.Close()
	}
	p.open = make(map[string]*os.File)
	p.freeLRU = nil
}
