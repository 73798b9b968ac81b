// Package healthgate verifies the cluster runtime is operative before the
// node is declared ready.
//
// The gate polls kube-system pods and passes once at least two of the named
// core components have a running pod. Two running components is a coarse
// proxy for "API server plus networking are operative", not a full readiness
// probe; the threshold is kept as-is deliberately.
package healthgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/avlaske/k3sinit/internal/config"
	"github.com/avlaske/k3sinit/internal/util/retry"
)

const systemNamespace = "kube-system"

// ErrTimeout is returned when the attempt budget is exhausted before the
// cluster reports healthy.
var ErrTimeout = errors.New("health gate timed out")

// Gate polls the cluster API for core component health.
type Gate struct {
	client     kubernetes.Interface
	interval   time.Duration
	attempts   int
	components []string
	required   int
}

// New creates a Gate against an existing clientset.
func New(cfg *config.Config, client kubernetes.Interface) *Gate {
	return &Gate{
		client:     client,
		interval:   cfg.Health.Interval(),
		attempts:   cfg.Health.Attempts,
		components: cfg.Health.Components,
		required:   cfg.Health.RequiredRunning,
	}
}

// NewFromKubeconfig creates a Gate from the locally generated kubeconfig.
func NewFromKubeconfig(cfg *config.Config) (*Gate, error) {
	restConfig, err := clientcmd.BuildConfigFromFlags("", cfg.Paths.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return New(cfg, clientset), nil
}

// Wait polls until enough core components report running, returning
// ErrTimeout (wrapped) after exactly the configured number of attempts.
func (g *Gate) Wait(ctx context.Context) error {
	err := retry.Poll(ctx, func() error {
		running, err := g.runningComponents(ctx)
		if err != nil {
			// The API server may not accept connections yet; that is
			// part of what the gate waits out.
			return fmt.Errorf("cluster API not reachable: %w", err)
		}
		if len(running) < g.required {
			return fmt.Errorf("%d of %d required core components running (%s)",
				len(running), g.required, strings.Join(g.components, ", "))
		}
		return nil
	},
		retry.WithInterval(g.interval),
		retry.WithMaxAttempts(g.attempts),
	)

	if err != nil {
		if errors.Is(err, retry.ErrBudgetExhausted) {
			return fmt.Errorf("%w after %d attempts: %v", ErrTimeout, g.attempts, err)
		}
		return err
	}
	return nil
}

// runningComponents returns which of the named components currently have a
// pod in Running phase.
func (g *Gate) runningComponents(ctx context.Context) ([]string, error) {
	pods, err := g.client.CoreV1().Pods(systemNamespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	var running []string
	for _, component := range g.components {
		if hasRunningPod(pods.Items, component) {
			running = append(running, component)
		}
	}
	return running, nil
}

// hasRunningPod reports whether a component has a pod in Running phase.
// Deployment pods carry generated suffixes (coredns-575bfc57-x7rnm), so the
// match is on the component name prefix.
func hasRunningPod(pods []corev1.Pod, component string) bool {
	for _, pod := range pods {
		if pod.Name != component && !strings.HasPrefix(pod.Name, component+"-") {
			continue
		}
		if pod.Status.Phase == corev1.PodRunning {
			return true
		}
	}
	return false
}
