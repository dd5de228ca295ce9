package repository

import (
	"context"
	"exam_prep_backend/internal/model"
	"strings"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Create(q).Error
}

// FindByIDs 按传入顺序返回题目，不存在的 id 被跳过
func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []string) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []model.Question
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]model.Question, len(rows))
	for _, q := range rows {
		byID[q.ID] = q
	}
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

// FindBySkills 返回带有任一技能标签的正式题目，skills 为空时返回全部
func (r *QuestionRepository) FindBySkills(ctx context.Context, skills []string) ([]model.Question, error) {
	query := r.DB.WithContext(ctx).Model(&model.Question{}).Where("is_fallback = ?", false)
	if len(skills) > 0 {
		conds := make([]string, 0, len(skills))
		for range skills {
			conds = append(conds, "(skill_tags = ? OR skill_tags LIKE ? OR skill_tags LIKE ? OR skill_tags LIKE ?)")
		}
		query = query.Where(strings.Join(conds, " OR "), expandSkillArgs(skills)...)
	}
	var questions []model.Question
	err := query.Order("problem_number ASC, id ASC").Find(&questions).Error
	return questions, err
}

func expandSkillArgs(skills []string) []interface{} {
	args := make([]interface{}, 0, len(skills)*4)
	for _, s := range skills {
		args = append(args, s, s+",%", "%,"+s, "%,"+s+",%")
	}
	return args
}

// FindByProblemNumber 返回某题位的全部正式候选题
func (r *QuestionRepository) FindByProblemNumber(ctx context.Context, problemNumber int) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.WithContext(ctx).
		Where("problem_number = ? AND is_fallback = ?", problemNumber, false).
		Order("id ASC").
		Find(&questions).Error
	return questions, err
}

// FindFallback 返回备用题池中某题位的候选题
func (r *QuestionRepository) FindFallback(ctx context.Context, problemNumber int) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.WithContext(ctx).
		Where("problem_number = ? AND is_fallback = ?", problemNumber, true).
		Order("id ASC").
		Find(&questions).Error
	return questions, err
}

// FindSkillTags 只读取题目的标签列
func (r *QuestionRepository) FindSkillTags(ctx context.Context, questionID string) (string, error) {
	var q model.Question
	err := r.DB.WithContext(ctx).Select("id", "skill_tags").First(&q, "id = ?", questionID).Error
	if err != nil {
		return "", err
	}
	return q.SkillTags, nil
}
