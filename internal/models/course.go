package models

import "time"

// Course is the root of the content hierarchy.
type Course struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Lecturers   []User    `gorm:"many2many:course_lecturers;constraint:OnDelete:CASCADE" json:"lecturers,omitempty"`
	Modules     []Module  `gorm:"constraint:OnDelete:CASCADE" json:"modules,omitempty"`
}

// HasLecturer reports whether the user teaches the course.
func (c Course) HasLecturer(userID uint) bool {
	for _, lecturer := range c.Lecturers {
		if lecturer.ID == userID {
			return true
		}
	}
	return false
}

// Module groups lessons inside a course.
type Module struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CourseID  uint      `gorm:"not null;index" json:"course_id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Course    *Course   `json:"course,omitempty"`
	Lessons   []Lesson  `gorm:"constraint:OnDelete:CASCADE" json:"lessons,omitempty"`
}

// Lesson owns resources and assignments.
type Lesson struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	ModuleID    uint         `gorm:"not null;index" json:"module_id"`
	Title       string       `gorm:"size:255;not null" json:"title"`
	Position    int          `gorm:"not null;default:0" json:"position"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Module      *Module      `json:"module,omitempty"`
	Resources   []Resource   `gorm:"constraint:OnDelete:CASCADE" json:"resources,omitempty"`
	Assignments []Assignment `gorm:"constraint:OnDelete:CASCADE" json:"assignments,omitempty"`
}

// Course returns the preloaded owning course, if any.
func (l Lesson) Course() *Course {
	if l.Module == nil {
		return nil
	}
	return l.Module.Course
}

// Enrollment status values.
const (
	EnrollmentStatusActive    = "active"
	EnrollmentStatusDropped   = "dropped"
	EnrollmentStatusCompleted = "completed"
)

// Enrollment links a student to a course.
type Enrollment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CourseID  uint      `gorm:"not null;uniqueIndex:idx_enrollments_course_student" json:"course_id"`
	StudentID uint      `gorm:"not null;uniqueIndex:idx_enrollments_course_student" json:"student_id"`
	Status    string    `gorm:"size:32;not null;default:active" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Course    *Course   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
