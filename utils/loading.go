package utils

import "sync"

// LoadingCounter tracks in-flight operations that should keep a loading
// indicator visible. onChange fires on the 0 -> 1 and 1 -> 0 transitions.
type LoadingCounter struct {
	mu       sync.Mutex
	count    int
	onChange func(loading bool)
}

func NewLoadingCounter(onChange func(loading bool)) *LoadingCounter {
	return &LoadingCounter{onChange: onChange}
}

// Acquire marks one operation as started. The returned release func is safe
// to call more than once; only the first call counts.
func (lc *LoadingCounter) Acquire() (release func()) {
	lc.mu.Lock()
	lc.count++
	if lc.count == 1 && lc.onChange != nil {
		lc.onChange(true)
	}
	lc.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(lc.release)
	}
}

func (lc *LoadingCounter) release() {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.count == 0 {
		return
	}
	lc.count--
	if lc.count == 0 && lc.onChange != nil {
		lc.onChange(false)
	}
}

// Run executes fn while holding one acquisition.
func (lc *LoadingCounter) Run(fn func() error) error {
	release := lc.Acquire()
	defer release()
	return fn()
}

func (lc *LoadingCounter) IsLoading() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.count > 0
}

func (lc *LoadingCounter) Count() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.count
}
