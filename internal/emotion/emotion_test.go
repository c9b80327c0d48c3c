// internal/emotion/emotion_test.go
package emotion

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func intp(v int) *int { return &v }

func TestApplyAccumulates(t *testing.T) {
	s := NewState()
	s.Apply(Delta{Joy: intp(3), Fear: intp(-2)})
	s.Apply(Delta{Joy: intp(4)})

	assert.Equal(t, 7, s.Get(Joy))
	assert.Equal(t, -2, s.Get(Fear))
	assert.Equal(t, 0, s.Get(Love))
}

func TestApplyClampsAtBounds(t *testing.T) {
	s := NewState()

	s.Apply(Delta{Hate: intp(15)})
	s.Apply(Delta{Hate: intp(15)})
	assert.Equal(t, MaxValue, s.Get(Hate))

	// 从上界回落必须从钳制后的值出发
	s.Apply(Delta{Hate: intp(-5)})
	assert.Equal(t, 15, s.Get(Hate))

	s.Apply(Delta{Sadness: intp(-50)})
	assert.Equal(t, MinValue, s.Get(Sadness))
}

func TestMissingDimensionsUntouched(t *testing.T) {
	s := NewState()
	s.Apply(Delta{Hope: intp(5)})
	s.Apply(Delta{Love: intp(1)})

	// Hope 未出现在第二次增量中，保持原值
	assert.Equal(t, 5, s.Get(Hope))

	snapshot := s.Snapshot()
	assert.Len(t, snapshot, 2)
	_, touched := snapshot[Fear]
	assert.False(t, touched)
}

func TestDeltaIsEmpty(t *testing.T) {
	assert.True(t, Delta{}.IsEmpty())
	assert.False(t, Delta{Joy: intp(0)}.IsEmpty())
}

func TestDescribe(t *testing.T) {
	s := NewState()
	assert.Equal(t, "", s.Describe())

	s.Apply(Delta{Joy: intp(2), Fear: intp(-1)})
	assert.Equal(t, "fear: -1\njoy: 2", s.Describe())
}

func TestRegistrySharesStatePerName(t *testing.T) {
	r := NewRegistry()

	a := r.For("Aria")
	a.Apply(Delta{Joy: intp(3)})

	// 同名返回同一实例
	assert.Equal(t, 3, r.For("Aria").Get(Joy))
	// 不同名互不影响
	assert.Equal(t, 0, r.For("Boros").Get(Joy))
}

func TestConcurrentApply(t *testing.T) {
	s := NewState()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Apply(Delta{Joy: intp(1)})
		}()
	}
	wg.Wait()
	assert.Equal(t, MaxValue, s.Get(Joy))
}
