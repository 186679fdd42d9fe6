// Package cluster reads pod information from the Kubernetes API.
package cluster

import (
	"context"
	"fmt"
	"os"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// DefaultNamespace is listed when no namespace is configured
const DefaultNamespace = "kube-system"

// LoadRESTConfig uses the in-cluster service account when running inside a
// pod and the kubeconfig loading rules otherwise. An explicit path takes
// precedence over $KUBECONFIG and ~/.kube/config.
func LoadRESTConfig(kubeconfig string) (*rest.Config, error) {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		config, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load in-cluster config: %w", err)
		}
		return config, nil
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
	}
	return config, nil
}

// NewClientset resolves credentials and creates a clientset
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	config, err := LoadRESTConfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return clientset, nil
}

// PodLister lists pod names in a single namespace
type PodLister struct {
	clientset kubernetes.Interface
	namespace string
}

// NewPodLister creates a lister for namespace (kube-system when empty)
func NewPodLister(clientset kubernetes.Interface, namespace string) *PodLister {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &PodLister{clientset: clientset, namespace: namespace}
}

// Namespace returns the namespace being listed
func (l *PodLister) Namespace() string {
	return l.namespace
}

// ListPodNames returns pod names in API order. An empty namespace yields an
// empty, non-nil slice.
func (l *PodLister) ListPodNames(ctx context.Context) ([]string, error) {
	pods, err := l.clientset.CoreV1().Pods(l.namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s: %w", l.namespace, err)
	}

	names := make([]string, 0, len(pods.Items))
	for _, pod := range pods.Items {
		names = append(names, pod.Name)
	}
	return names, nil
}
