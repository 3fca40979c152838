// Package robot models a four-joint servo arm: calibration, joint limits and homing.
package robot

// JointName identifies a joint in the arm.
type JointName string

// Joint names for the arm, base first.
const (
	Base     JointName = "base"
	Shoulder JointName = "shoulder"
	Wrist    JointName = "wrist"
	Grip     JointName = "grip"
)

// AllJoints returns all joint names in homing order.
func AllJoints() []JointName {
	return []JointName{
		Base,
		Shoulder,
		Wrist,
		Grip,
	}
}

// ParseJointName returns the JointName for s, or false if s names no joint.
func ParseJointName(s string) (JointName, bool) {
	for _, name := range AllJoints() {
		if string(name) == s {
			return name, true
		}
	}
	return "", false
}
