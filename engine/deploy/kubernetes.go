package deploy

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rayrayraykk/agentscope-runtime/config"
	"github.com/rayrayraykk/agentscope-runtime/types"
)

// KubernetesOptions describe the rendered workload.
type KubernetesOptions struct {
	Name      string
	Namespace string
	Image     string
	Replicas  int
	// Kubectl overrides the kubectl binary, mainly for tests.
	Kubectl string
}

// Kubernetes renders Deployment and Service manifests for the runtime
// and applies them with kubectl.
type Kubernetes struct {
	cfg    *config.Config
	opts   KubernetesOptions
	logger *zap.Logger

	applied bool
}

// NewKubernetes wires a kubernetes deployment.
func NewKubernetes(cfg *config.Config, opts KubernetesOptions, logger *zap.Logger) *Kubernetes {
	if opts.Name == "" {
		opts.Name = "agentscope-runtime"
	}
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	if opts.Replicas <= 0 {
		opts.Replicas = 1
	}
	if opts.Kubectl == "" {
		opts.Kubectl = "kubectl"
	}
	return &Kubernetes{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With(zap.String("component", "deploy_kubernetes")),
	}
}

// manifest mirrors the subset of the Kubernetes object schema we emit.
type manifest struct {
	APIVersion string         `yaml:"apiVersion"`
	Kind       string         `yaml:"kind"`
	Metadata   map[string]any `yaml:"metadata"`
	Spec       map[string]any `yaml:"spec"`
}

// RenderManifests produces the Deployment and Service documents as one
// multi-document YAML stream.
func (k *Kubernetes) RenderManifests() ([]byte, error) {
	labels := map[string]any{"app": k.opts.Name}
	port := k.cfg.Server.HTTPPort

	deployment := manifest{
		APIVersion: "apps/v1",
		Kind:       "Deployment",
		Metadata: map[string]any{
			"name":      k.opts.Name,
			"namespace": k.opts.Namespace,
			"labels":    labels,
		},
		Spec: map[string]any{
			"replicas": k.opts.Replicas,
			"selector": map[string]any{"matchLabels": labels},
			"template": map[string]any{
				"metadata": map[string]any{"labels": labels},
				"spec": map[string]any{
					"containers": []any{map[string]any{
						"name":  k.opts.Name,
						"image": k.opts.Image,
						"args":  []any{"serve", "--mode", config.ModeDaemon},
						"ports": []any{map[string]any{"containerPort": port}},
						"readinessProbe": map[string]any{
							"httpGet":             map[string]any{"path": "/readiness", "port": port},
							"initialDelaySeconds": 2,
							"periodSeconds":       5,
						},
						"livenessProbe": map[string]any{
							"httpGet":             map[string]any{"path": "/liveness", "port": port},
							"initialDelaySeconds": 5,
							"periodSeconds":       10,
						},
					}},
				},
			},
		},
	}

	service := manifest{
		APIVersion: "v1",
		Kind:       "Service",
		Metadata: map[string]any{
			"name":      k.opts.Name,
			"namespace": k.opts.Namespace,
			"labels":    labels,
		},
		Spec: map[string]any{
			"selector": labels,
			"ports": []any{map[string]any{
				"port":       port,
				"targetPort": port,
			}},
		},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, doc := range []manifest{deployment, service} {
		if err := enc.Encode(doc); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (k *Kubernetes) Start(ctx context.Context) (string, error) {
	if k.applied {
		return "", errAlreadyRunning()
	}
	if k.opts.Image == "" {
		return "", types.NewError(types.ErrInvalidRequest, "kubernetes deployment requires an image")
	}

	docs, err := k.RenderManifests()
	if err != nil {
		return "", types.NewError(types.ErrDeploymentFailed, "manifest rendering failed").WithCause(err)
	}

	if err := k.kubectl(ctx, docs, "apply", "-f", "-"); err != nil {
		return "", err
	}
	k.applied = true

	url := fmt.Sprintf("http://%s.%s:%d", k.opts.Name, k.opts.Namespace, k.cfg.Server.HTTPPort)
	k.logger.Info("kubernetes deployment applied",
		zap.String("name", k.opts.Name),
		zap.String("namespace", k.opts.Namespace),
		zap.String("url", url),
	)
	return url, nil
}

func (k *Kubernetes) Stop(ctx context.Context) error {
	if !k.applied {
		return errNotRunning()
	}
	docs, err := k.RenderManifests()
	if err != nil {
		return types.NewError(types.ErrDeploymentFailed, "manifest rendering failed").WithCause(err)
	}
	if err := k.kubectl(ctx, docs, "delete", "--ignore-not-found", "-f", "-"); err != nil {
		return err
	}
	k.applied = false
	return nil
}

func (k *Kubernetes) Running() bool { return k.applied }

func (k *Kubernetes) kubectl(ctx context.Context, stdin []byte, args ...string) error {
	cmd := exec.CommandContext(ctx, k.opts.Kubectl, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return types.NewError(types.ErrDeploymentFailed,
			fmt.Sprintf("kubectl %s failed: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String()))).
			WithCause(err)
	}
	return nil
}

var _ Manager = (*Kubernetes)(nil)
