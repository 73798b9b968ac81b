package healthgate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	"github.com/avlaske/k3sinit/internal/config"
)

func pod(name string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: systemNamespace},
		Status:     corev1.PodStatus{Phase: phase},
	}
}

func gateConfig(attempts int) *config.Config {
	cfg := &config.Config{ClusterID: "c", Bucket: "b", Region: "r"}
	cfg.ApplyDefaults()
	cfg.Health.Attempts = attempts
	cfg.Health.IntervalSeconds = 0 // poll without sleeping in tests
	return cfg
}

func TestWait_SucceedsWithTwoRunningComponents(t *testing.T) {
	client := fake.NewSimpleClientset(
		pod("coredns-575bfc57-x7rnm", corev1.PodRunning),
		pod("metrics-server-7b67f64457-abcde", corev1.PodRunning),
		pod("helm-install-traefik-z9k2p", corev1.PodPending),
	)
	gate := New(gateConfig(3), client)

	assert.NoError(t, gate.Wait(context.Background()))
}

func TestWait_OneRunningComponentIsNotEnough(t *testing.T) {
	client := fake.NewSimpleClientset(
		pod("coredns-575bfc57-x7rnm", corev1.PodRunning),
		pod("metrics-server-7b67f64457-abcde", corev1.PodPending),
	)
	gate := New(gateConfig(2), client)

	err := gate.Wait(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWait_TimeoutAfterExactAttemptBudget(t *testing.T) {
	client := fake.NewSimpleClientset()

	var listCalls atomic.Int32
	client.PrependReactor("list", "pods",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			listCalls.Add(1)
			return false, nil, nil
		})

	gate := New(gateConfig(5), client)

	err := gate.Wait(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(5), listCalls.Load(), "exactly the configured number of polls")
}

func TestWait_RecoversWhenComponentsComeUp(t *testing.T) {
	client := fake.NewSimpleClientset(
		pod("coredns-575bfc57-x7rnm", corev1.PodRunning),
	)
	cfg := gateConfig(50)
	gate := New(cfg, client)
	gate.interval = 5 * time.Millisecond

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = client.CoreV1().Pods(systemNamespace).Create(context.Background(),
			pod("metrics-server-7b67f64457-abcde", corev1.PodRunning), metav1.CreateOptions{})
	}()

	assert.NoError(t, gate.Wait(context.Background()))
}

func TestWait_APIUnreachableCountsAgainstBudget(t *testing.T) {
	client := fake.NewSimpleClientset()
	client.PrependReactor("list", "pods",
		func(action k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, errors.New("connection refused")
		})

	gate := New(gateConfig(3), client)

	err := gate.Wait(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWait_ContextCancellation(t *testing.T) {
	client := fake.NewSimpleClientset()
	cfg := gateConfig(30)
	gate := New(cfg, client)
	gate.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	err := gate.Wait(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHasRunningPod_NameMatching(t *testing.T) {
	tests := []struct {
		name      string
		podName   string
		component string
		phase     corev1.PodPhase
		want      bool
	}{
		{"deployment suffix", "coredns-575bfc57-x7rnm", "coredns", corev1.PodRunning, true},
		{"exact name", "coredns", "coredns", corev1.PodRunning, true},
		{"unrelated pod with shared prefix", "coredns-autoscaler-abc", "coredns", corev1.PodRunning, true},
		{"different component", "metrics-server-abc", "coredns", corev1.PodRunning, false},
		{"not running", "coredns-575bfc57-x7rnm", "coredns", corev1.PodPending, false},
		{"prefix without separator", "corednsx-abc", "coredns", corev1.PodRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pods := []corev1.Pod{*pod(tt.podName, tt.phase)}
			assert.Equal(t, tt.want, hasRunningPod(pods, tt.component))
		})
	}
}
