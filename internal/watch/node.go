package watch

import (
	"context"
	"fmt"
	"time"

	v1 "k8s.io/api/core/v1"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/cen-ngc5139/nfsd-trace/internal/log"
	"github.com/cen-ngc5139/nfsd-trace/internal/metadata"
)

const defaultResync = 10 * time.Minute

// NodeWatcher keeps the client address to node name cache in sync with the
// cluster's nodes.
type NodeWatcher struct {
	factory  informers.SharedInformerFactory
	informer cache.SharedIndexInformer
}

func NewNodeWatcher(cs kubernetes.Interface) (*NodeWatcher, error) {
	factory := informers.NewSharedInformerFactory(cs, defaultResync)
	informer := factory.Core().V1().Nodes().Informer()

	_, err := informer.AddEventHandler(cache.ResourceEventHandlerFuncs{
		AddFunc: func(obj interface{}) {
			node, ok := obj.(*v1.Node)
			if !ok {
				return
			}
			log.Infof("Node %s has been add", node.Name)
			metadata.StoreNode(node)
		},
		UpdateFunc: func(old interface{}, new interface{}) {
			node, ok := new.(*v1.Node)
			if !ok {
				return
			}
			metadata.StoreNode(node)
		},
		DeleteFunc: func(obj interface{}) {
			if tombstone, ok := obj.(cache.DeletedFinalStateUnknown); ok {
				obj = tombstone.Obj
			}
			node, ok := obj.(*v1.Node)
			if !ok {
				return
			}
			log.Infof("Node %s has been deleted", node.Name)
			metadata.DeleteNode(node.Name)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add node event handler: %w", err)
	}

	return &NodeWatcher{factory: factory, informer: informer}, nil
}

// Run blocks until ctx is done. Cancelling ctx before the first sync is a
// clean stop, not an error.
func (w *NodeWatcher) Run(ctx context.Context) error {
	w.factory.Start(ctx.Done())
	defer w.factory.Shutdown()

	if !cache.WaitForCacheSync(ctx.Done(), w.informer.HasSynced) {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("node informer cache sync failed")
	}
	log.Info("Start sync the node addresses")

	<-ctx.Done()
	return nil
}

// HasSynced reports whether the initial node list has been stored.
func (w *NodeWatcher) HasSynced() bool {
	return w.informer.HasSynced()
}
