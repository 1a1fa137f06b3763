package cli

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/stratusforge/stratus/pkg/builder"
	"github.com/stratusforge/stratus/pkg/cfn"
	"github.com/stratusforge/stratus/pkg/provision"
	"github.com/stratusforge/stratus/pkg/settings"
	"github.com/stratusforge/stratus/pkg/stage"
	"go.uber.org/zap"
)

const defaultRegion = "us-east-1"

// controller wires the configuration loader, the builders, the stager and
// the provisioning client into one stack operation.
type controller struct {
	opts options
	log  *zap.SugaredLogger
}

func newController(opts options) (*controller, error) {
	return &controller{opts: opts, log: zap.S().Named("cli")}, nil
}

func (c *controller) run(ctx context.Context, action, resourceType, name string) error {
	environment := c.opts.environment
	if environment == "" && resourceType == "environment" {
		environment = name
	}
	if environment == "" {
		return errors.New("an environment is required (--environment)")
	}

	dir := settings.NewDir(c.opts.configDir, environment)
	envValues, err := dir.ResourceSettings("environment", environment)
	if err != nil {
		return errors.Wrap(err, "loading environment configuration")
	}

	region := c.opts.region
	if region == "" {
		region = stringValue(envValues, "region", defaultRegion)
	}
	// Deleting needs only the derived stack name; skip assembly so nothing
	// gets staged for a stack that is going away.
	if action == "delete" {
		stackName := fmt.Sprintf("%s-%s-%s", environment, resourceType, name)
		if c.opts.dryRun {
			fmt.Printf("Would delete stack %s\n", stackName)
			return nil
		}
		return c.provisionStack(ctx, action, stackName, "", environment, region)
	}

	bucket := stringValue(envValues, "s3bucket", "")
	prefix := stringValue(envValues, "s3prefix", "templates")

	var stager *stage.S3Stager
	if !c.opts.dryRun && bucket != "" {
		stager, err = stage.New(ctx, bucket, prefix, region, c.opts.profile)
		if err != nil {
			return errors.Wrap(err, "configuring template staging")
		}
	}

	template, err := c.assemble(ctx, assembly{
		action:       action,
		resourceType: resourceType,
		name:         name,
		environment:  environment,
		region:       region,
		bucket:       bucket,
		prefix:       prefix,
		dir:          dir,
		envValues:    envValues,
		stager:       stager,
	})
	if err != nil {
		return err
	}

	body, err := template.AsJSON(2)
	if err != nil {
		return errors.Wrap(err, "serializing template")
	}

	if c.opts.dryRun {
		fmt.Println(body)
		return nil
	}

	if err := c.provisionStack(ctx, action, template.Name(), body, environment, region); err != nil {
		if stager != nil {
			stager.Cleanup(ctx)
		}
		return err
	}
	return nil
}

type assembly struct {
	action       string
	resourceType string
	name         string
	environment  string
	region       string
	bucket       string
	prefix       string
	dir          *settings.Dir
	envValues    settings.Values
	stager       *stage.S3Stager
}

// assemble builds the resource unit for one declared type and collects it
// into a named template.
func (c *controller) assemble(ctx context.Context, a assembly) (*cfn.Template, error) {
	values := a.envValues
	if a.resourceType != "environment" {
		var err error
		values, err = a.dir.ResourceSettings(a.resourceType, a.name)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s configuration", a.resourceType)
		}
	}
	mappings, err := a.dir.Mappings(a.resourceType, a.name)
	if err != nil {
		return nil, errors.Wrap(err, "loading mappings")
	}

	cfg := &builder.Config{
		Settings:    values,
		Mappings:    mappings,
		Region:      a.region,
		Bucket:      a.bucket,
		Prefix:      a.prefix,
		Profile:     c.opts.profile,
		Environment: a.environment,
		Service:     a.name,
	}

	// A typed nil must not reach the Stager interface value.
	var stager builder.Stager
	var fetcher builder.Fetcher
	if a.stager != nil {
		stager = a.stager
		fetcher = a.stager
	}

	var unit *builder.Builder
	switch a.resourceType {
	case "environment":
		b, err := builder.NewNetwork(cfg, a.environment)
		if err != nil {
			return nil, err
		}
		unit = &b.Builder

	case "service":
		network, amis, err := c.environmentContext(a)
		if err != nil {
			return nil, err
		}
		b, err := builder.NewService(ctx, cfg, a.name, network, amis, a.dir,
			fetcher, stager, nil, "")
		if err != nil {
			return nil, err
		}
		unit = &b.Builder

	case "cache":
		network, _, err := c.environmentContext(a)
		if err != nil {
			return nil, err
		}
		b, err := builder.NewCache(cfg, a.name, network)
		if err != nil {
			return nil, err
		}
		unit = &b.Builder

	case "database":
		network, _, err := c.environmentContext(a)
		if err != nil {
			return nil, err
		}
		b, err := builder.NewDatabase(cfg, a.name, network)
		if err != nil {
			return nil, err
		}
		unit = &b.Builder

	case "dns":
		b, err := builder.NewRecordSet(cfg, a.name)
		if err != nil {
			return nil, err
		}
		unit = &b.Builder

	case "stack":
		network, amis, err := c.environmentContext(a)
		if err != nil {
			return nil, err
		}
		b, err := builder.NewStack(ctx, cfg, a.name, network, amis, a.dir,
			fetcher, stager)
		if err != nil {
			return nil, err
		}
		unit = &b.Builder

	default:
		return nil, settings.NewConfigurationError("unknown resource type %q", a.resourceType)
	}

	templateName := fmt.Sprintf("%s-%s-%s", a.environment, a.resourceType, a.name)
	template := cfn.NewTemplate(templateName)
	if description := stringValue(values, "description", ""); description != "" {
		template.SetDescription(description)
	}
	template.UpdateMappings(cfg.Mappings)
	template.UpdateOutputs(unit.Outputs())
	template.UpdateParameters(unit.Parameters())
	template.UpdateResources(unit.Resources())
	return template, nil
}

// environmentContext resolves the already-provisioned network description
// and the region AMI table that non-environment builders work against.
func (c *controller) environmentContext(a assembly) (*builder.Network, map[string]map[string]string, error) {
	envMappings, err := a.dir.Mappings("environment", a.environment)
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading environment mappings")
	}
	envCfg := &builder.Config{
		Settings:    a.envValues,
		Mappings:    envMappings,
		Region:      a.region,
		Environment: a.environment,
	}
	network, err := builder.NetworkFromConfig(envCfg, a.environment)
	if err != nil {
		return nil, nil, err
	}
	amis, err := a.dir.AMIs()
	if err != nil {
		return nil, nil, errors.Wrap(err, "loading AMI table")
	}
	return network, amis, nil
}

func (c *controller) provisionStack(ctx context.Context, action, stackName, body, environment, region string) error {
	client, err := provision.New(ctx, region, c.opts.profile)
	if err != nil {
		return errors.Wrap(err, "configuring provisioning client")
	}

	switch action {
	case "create":
		stackID, err := client.Create(ctx, stackName, body,
			map[string]string{"Environment": environment})
		if err != nil {
			return err
		}
		fmt.Printf("Stack created: %s\n", stackID)
		return c.printCost(ctx, client, stackName, body)

	case "update":
		if err := client.Update(ctx, stackName, body); err != nil {
			return err
		}
		fmt.Println("Stack updated")
		return c.printCost(ctx, client, stackName, body)

	case "delete":
		if err := client.Delete(ctx, stackName); err != nil {
			return err
		}
		fmt.Println("Stack deleted")
		return nil

	case "estimate":
		return c.printCost(ctx, client, stackName, body)

	default:
		return errors.Errorf("unknown action %q", action)
	}
}

func (c *controller) printCost(ctx context.Context, client *provision.Client, stackName, body string) error {
	url, err := client.EstimateCost(ctx, stackName, body)
	if err != nil {
		return err
	}
	fmt.Printf("Stack cost calculator URL: %s\n", url)
	return nil
}

func stringValue(values settings.Values, key, fallback string) string {
	if s, ok := values[key].(string); ok && s != "" {
		return s
	}
	return fallback
}
