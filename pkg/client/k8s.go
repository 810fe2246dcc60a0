package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

type K8sClusterInterface interface {
	GetK8sClientSet() kubernetes.Interface
	GetK8sConfig() *rest.Config
	CreateClient() error
}

type K8sClusterManager struct {
	K8sSet     kubernetes.Interface
	K8sConf    *rest.Config
	KubeConfig string
}

func (m *K8sClusterManager) GetK8sConfig() *rest.Config {
	return m.K8sConf
}

func (m *K8sClusterManager) GetK8sClientSet() kubernetes.Interface {
	return m.K8sSet
}

// kubeConfigPath 按 KUBECONFIG, ~/.kube/config 的顺序查找
func kubeConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv("KUBECONFIG"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kube", "config")
}

// CreateClient 用于创建 k8s 客户端, 找不到 kubeconfig 时使用 in-cluster 配置
func (m *K8sClusterManager) CreateClient() error {
	config, err := clientcmd.BuildConfigFromFlags("", kubeConfigPath(m.KubeConfig))
	if err != nil {
		config, err = rest.InClusterConfig()
		if err != nil {
			return fmt.Errorf("error creating k8s client: %v", err)
		}
	}
	m.K8sConf = config

	set, err := kubernetes.NewForConfig(config)
	if err != nil {
		return errors.Wrapf(err, "创建 k8s set 客户端失败")
	}
	m.K8sSet = set

	return nil
}

func NewK8sManager(kubeConfig string) K8sClusterInterface {
	return &K8sClusterManager{KubeConfig: kubeConfig}
}
