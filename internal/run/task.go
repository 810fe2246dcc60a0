package run

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task 定义单个任务
type Task struct {
	Name string
	Fn   func(ctx context.Context) error
}

// TaskManager 管理任务的结构
type TaskManager struct {
	tasks []Task
	mu    sync.RWMutex
}

// NewTaskManager 创建一个新的 TaskManager
func NewTaskManager() *TaskManager {
	return &TaskManager{
		tasks: []Task{},
	}
}

// Add 添加一个新任务
func (tm *TaskManager) Add(name string, fn func(ctx context.Context) error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.tasks = append(tm.tasks, Task{Name: name, Fn: fn})
}

// Get 获取指定名称的任务
func (tm *TaskManager) Get(name string) (Task, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	for _, task := range tm.tasks {
		if task.Name == name {
			return task, true
		}
	}
	return Task{}, false
}

// Delete 删除指定名称的任务
func (tm *TaskManager) Delete(name string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for i, task := range tm.tasks {
		if task.Name == name {
			tm.tasks = append(tm.tasks[:i], tm.tasks[i+1:]...)
			return true
		}
	}
	return false
}

// List 列出所有任务
func (tm *TaskManager) List() []Task {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return append([]Task{}, tm.tasks...)
}

// Run 并发运行所有任务, 任一任务失败时取消其余任务
func (tm *TaskManager) Run(ctx context.Context) error {
	tasks := tm.List()

	var (
		mu   sync.Mutex
		errs []error
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		t := task
		g.Go(func() error {
			if err := t.Fn(ctx); err != nil {
				err = fmt.Errorf("任务 '%s' 执行失败: %w", t.Name, err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return err
			}
			return nil
		})
	}

	// 等待所有任务完成
	_ = g.Wait()
	return errors.Join(errs...)
}
