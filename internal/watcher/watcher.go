package watcher

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"dcsm/internal/logger"
)

// debounceWindow 游戏写存档是多次连续写入，窗口内只上报一次
const debounceWindow = 500 * time.Millisecond

// Watcher 存档目录变更监视器。
// 只负责上报"有变化"，差异展示由存档浏览侧处理。
type Watcher struct {
	fw     *fsnotify.Watcher
	dir    string
	notify func(path string)
	log    logger.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New 创建并启动对存档目录的监视
func New(dir string, notify func(path string), log logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	w := &Watcher{
		fw:       fw,
		dir:      dir,
		notify:   notify,
		log:      log,
		lastSeen: make(map[string]time.Time),
		stopCh:   make(chan struct{}),
	}
	go w.loop()
	log.Info("开始监视存档目录", "dir", dir)
	return w, nil
}

// Close 停止监视
func (w *Watcher) Close() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.fw.Close()
	})
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.handle(ev.Name)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Debug("存档监视错误", "error", err)
		}
	}
}

func (w *Watcher) handle(path string) {
	key := filepath.Clean(path)

	w.mu.Lock()
	last := w.lastSeen[key]
	now := time.Now()
	if now.Sub(last) < debounceWindow {
		w.mu.Unlock()
		return
	}
	w.lastSeen[key] = now
	w.mu.Unlock()

	w.log.Debug("存档发生变更", "path", key)
	if w.notify != nil {
		w.notify(key)
	}
}
