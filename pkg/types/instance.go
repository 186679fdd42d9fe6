package types

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// DefaultInstanceType is used when a launch request does not name an instance type
const DefaultInstanceType = "t2.micro"

// LaunchSpec describes a single instance to provision. It is treated as a value:
// constructors copy the slices and maps they are given.
type LaunchSpec struct {
	SubnetID         string            `json:"subnet_id" yaml:"subnet_id"`
	ImageID          string            `json:"image_id" yaml:"image_id"`
	InstanceType     string            `json:"instance_type" yaml:"instance_type"`
	KeyName          string            `json:"key_name,omitempty" yaml:"key_name,omitempty"`
	SecurityGroupIDs []string          `json:"security_group_ids,omitempty" yaml:"security_group_ids,omitempty"`
	Tags             map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// NewLaunchSpec builds a validated LaunchSpec, applying the default instance type
func NewLaunchSpec(subnetID, imageID, instanceType, keyName string, securityGroupIDs []string, tags map[string]string) (LaunchSpec, error) {
	spec := LaunchSpec{
		SubnetID:         strings.TrimSpace(subnetID),
		ImageID:          strings.TrimSpace(imageID),
		InstanceType:     strings.TrimSpace(instanceType),
		KeyName:          strings.TrimSpace(keyName),
		SecurityGroupIDs: slices.Clone(securityGroupIDs),
		Tags:             maps.Clone(tags),
	}

	if spec.InstanceType == "" {
		spec.InstanceType = DefaultInstanceType
	}

	if err := spec.Validate(); err != nil {
		return LaunchSpec{}, err
	}

	return spec, nil
}

// Validate checks the fields every provider needs to launch an instance
func (s LaunchSpec) Validate() error {
	if strings.TrimSpace(s.SubnetID) == "" {
		return fmt.Errorf("subnet id is required")
	}
	if strings.TrimSpace(s.ImageID) == "" {
		return fmt.Errorf("image id is required")
	}
	for key := range s.Tags {
		if key == "" {
			return fmt.Errorf("tag keys must not be empty")
		}
	}
	return nil
}

// HasTags reports whether the spec carries tags to apply after launch
func (s LaunchSpec) HasTags() bool {
	return len(s.Tags) > 0
}

// SortedTagKeys returns the tag keys in lexical order so tag requests are deterministic
func (s LaunchSpec) SortedTagKeys() []string {
	return slices.Sorted(maps.Keys(s.Tags))
}

// ParseTags converts "key=value" pairs into a tag map. Only the first '=' separates
// key from value; a repeated key keeps the last value.
func ParseTags(pairs []string) (map[string]string, error) {
	tags := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid tag %q: expected key=value", pair)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid tag %q: empty key", pair)
		}
		tags[key] = value
	}
	return tags, nil
}

// SplitList flattens repeated flag values that may themselves hold space or comma
// separated items, dropping empties and keeping order
func SplitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, item := range strings.FieldsFunc(value, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		}) {
			out = append(out, item)
		}
	}
	return out
}
